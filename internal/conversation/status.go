package conversation

import (
	"errors"
	"fmt"
	"time"
)

// Status is the externally visible state of the conversation.
type Status int

const (
	// StatusIdle means no session has been started yet.
	StatusIdle Status = iota
	// StatusConnecting means devices are being opened and the remote session
	// is being established.
	StatusConnecting
	// StatusListening means the session is open and the assistant is silent.
	StatusListening
	// StatusSpeaking means assistant audio is queued or playing.
	StatusSpeaking
	// StatusEnded means the last session is over. See [EndReason].
	StatusEnded
)

// String returns the lowercase state name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusListening:
		return "listening"
	case StatusSpeaking:
		return "speaking"
	case StatusEnded:
		return "ended"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Active reports whether s belongs to a running session.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusListening || s == StatusSpeaking
}

// EndReason tells why a session reached [StatusEnded].
type EndReason int

const (
	// ReasonNone is reported while no session has ended.
	ReasonNone EndReason = iota
	// ReasonStopped means Stop was called.
	ReasonStopped
	// ReasonSetupFailed means a device or the remote connection could not be
	// opened.
	ReasonSetupFailed
	// ReasonRemoteError means the remote side reported an error.
	ReasonRemoteError
	// ReasonRemoteClosed means the remote side closed the session.
	ReasonRemoteClosed
)

// String returns a snake_case name suitable for logs and metric attributes.
func (r EndReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonStopped:
		return "stopped"
	case ReasonSetupFailed:
		return "setup_failed"
	case ReasonRemoteError:
		return "remote_error"
	case ReasonRemoteClosed:
		return "remote_closed"
	default:
		return fmt.Sprintf("EndReason(%d)", int(r))
	}
}

// StatusChange is published to subscribers on every transition.
type StatusChange struct {
	SessionID string
	From, To  Status
	Reason    EndReason
	Err       error
	At        time.Time
}

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("conversation: session already active")

	// ErrStopped is returned by Start when Stop interrupted the setup.
	ErrStopped = errors.New("conversation: session stopped during setup")

	// ErrRemoteClosed is the error recorded when the remote side hangs up.
	ErrRemoteClosed = errors.New("conversation: remote closed the session")

	// ErrDecode marks an inbound audio chunk that could not be decoded.
	ErrDecode = errors.New("conversation: undecodable audio chunk")

	// ErrSchedulerClosed is returned by Scheduler.Enqueue after Close.
	ErrSchedulerClosed = errors.New("conversation: scheduler closed")
)
