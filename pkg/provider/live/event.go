package live

import "fmt"

// Event is one inbound message from a live connection. The concrete types are
// [Opened], [AudioPayload], [TranscriptFragment], [TurnComplete], [Errored],
// and [Closed].
type Event interface {
	isEvent()
}

// Role identifies who a transcript fragment belongs to.
type Role int

const (
	// RoleUser marks transcripts of the farmer's speech.
	RoleUser Role = iota
	// RoleModel marks transcripts of the assistant's speech.
	RoleModel
)

// String returns "user" or "model".
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModel:
		return "model"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// MarshalText encodes the role as its String form.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts "user" or "model".
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "user":
		*r = RoleUser
	case "model":
		*r = RoleModel
	default:
		return fmt.Errorf("live: unknown role %q", b)
	}
	return nil
}

// Opened reports that the session setup was acknowledged.
type Opened struct{}

// AudioPayload carries one chunk of synthesised speech.
type AudioPayload struct {
	// MIMEType as reported by the provider, e.g. "audio/pcm;rate=24000".
	MIMEType string

	// Data is raw 16-bit little-endian PCM.
	Data []byte
}

// TranscriptFragment is an incremental piece of transcription text. Fragments
// of the same role within a turn are meant to be concatenated.
type TranscriptFragment struct {
	Role Role
	Text string
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// Interrupted reports that the user spoke over the model. Audio already
// delivered for the interrupted turn should stop playing.
type Interrupted struct{}

// Errored reports a fatal connection or protocol error.
type Errored struct {
	Err error
}

// Closed reports that the remote side ended the session.
type Closed struct {
	// Reason is the close reason reported by the transport, if any.
	Reason string
}

func (Opened) isEvent()             {}
func (AudioPayload) isEvent()       {}
func (TranscriptFragment) isEvent() {}
func (TurnComplete) isEvent()       {}
func (Interrupted) isEvent()        {}
func (Errored) isEvent()            {}
func (Closed) isEvent()             {}
