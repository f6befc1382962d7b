// Package arbiter enforces that at most one audio player is audible at a time.
//
// A live conversation and any other playback feature (for example reading an
// advisory aloud) share one [Arbiter]. Registering a player stops whichever
// player was registered before it.
package arbiter

import (
	"log/slog"
	"sync"
)

// Player is anything that produces audible output and can be silenced.
type Player interface {
	// StopPlayback silences the player. It is called without the arbiter's
	// lock held, so it may call back into the arbiter (for example to release
	// its own registration).
	StopPlayback()
}

// Arbiter tracks the current player. The zero value is ready to use.
type Arbiter struct {
	mu      sync.Mutex
	current *registration
}

type registration struct {
	player Player
	once   sync.Once
}

// New returns an empty Arbiter.
func New() *Arbiter { return &Arbiter{} }

// Register makes p the current player and stops the previous one, if any.
// The returned release function clears the registration only while p is
// still current; it is safe to call more than once.
func (a *Arbiter) Register(p Player) (release func()) {
	reg := &registration{player: p}

	a.mu.Lock()
	prev := a.current
	a.current = reg
	a.mu.Unlock()

	if prev != nil {
		slog.Debug("arbiter: stopping previous player")
		prev.player.StopPlayback()
	}

	return func() {
		reg.once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.current == reg {
				a.current = nil
			}
		})
	}
}

// Current returns the current player, or nil when nothing is registered.
func (a *Arbiter) Current() Player {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current.player
}
