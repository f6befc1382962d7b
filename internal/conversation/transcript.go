package conversation

import (
	"strings"
	"sync"

	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// Line is one finalised transcript entry.
type Line struct {
	Role live.Role `json:"role"`
	Text string    `json:"text"`
}

// Speaker returns the display prefix used by the transcript view.
func (l Line) Speaker() string {
	if l.Role == live.RoleUser {
		return "You"
	}
	return "AI"
}

// String renders the line as "You: ..." or "AI: ...".
func (l Line) String() string {
	return l.Speaker() + ": " + l.Text
}

// Accumulator collects transcription fragments per role and turns them into
// transcript lines at turn boundaries. It is safe for concurrent use.
type Accumulator struct {
	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
	lines []Line
}

// Append concatenates text onto the in-progress buffer for role.
func (a *Accumulator) Append(role live.Role, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch role {
	case live.RoleUser:
		a.user.WriteString(text)
	case live.RoleModel:
		a.model.WriteString(text)
	}
}

// Flush finalises both buffers: the user line first, then the model line,
// each only if its trimmed text is non-empty. Both buffers are cleared. It
// returns the lines appended by this call.
func (a *Accumulator) Flush() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	var added []Line
	if text := strings.TrimSpace(a.user.String()); text != "" {
		added = append(added, Line{Role: live.RoleUser, Text: text})
	}
	if text := strings.TrimSpace(a.model.String()); text != "" {
		added = append(added, Line{Role: live.RoleModel, Text: text})
	}
	a.user.Reset()
	a.model.Reset()
	a.lines = append(a.lines, added...)
	return added
}

// Pending returns the unflushed user and model text.
func (a *Accumulator) Pending() (user, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.model.String()
}

// Lines returns a copy of every finalised line.
func (a *Accumulator) Lines() []Line {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Line, len(a.lines))
	copy(out, a.lines)
	return out
}

// Reset discards all lines and in-progress text.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
	a.lines = nil
}
