// Package live defines the Provider interface for live conversational voice
// backends.
//
// A live provider wraps a remote model that accepts a continuous stream of
// microphone audio and answers with synthesised speech and running
// transcriptions over a single duplex connection. Gemini Live is the reference
// backend.
//
// The central abstraction is Conn: an open connection that accepts realtime
// audio input and delivers every inbound message as a typed [Event] on a single
// channel, so a consumer handles the whole protocol in one type switch.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
)

// DefaultVoice is the prebuilt voice used when SessionConfig.Voice is empty.
const DefaultVoice = "Zephyr"

// ErrClosed is returned by Conn.SendRealtimeInput after the connection closed.
var ErrClosed = errors.New("live: connection closed")

// Blob is a chunk of media sent to or received from the model.
type Blob struct {
	// MIMEType describes Data, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data holds the raw (not base64-encoded) bytes.
	Data []byte
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Model is the provider-specific model identifier. Empty selects the
	// provider's default.
	Model string

	// Voice is the prebuilt voice name. Empty selects [DefaultVoice].
	Voice string

	// Instructions is the system instruction that frames the conversation,
	// for example an agronomy assistant persona.
	Instructions string

	// Language is an optional BCP-47 language code for speech output.
	Language string

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool
}

// VoiceName returns Voice, or DefaultVoice when Voice is empty.
func (c SessionConfig) VoiceName() string {
	if c.Voice == "" {
		return DefaultVoice
	}
	return c.Voice
}

// Capabilities describes static properties of a live provider.
type Capabilities struct {
	// InputSampleRate is the PCM rate the provider expects from the microphone.
	InputSampleRate int

	// OutputSampleRate is the PCM rate of the audio the provider returns.
	OutputSampleRate int

	// Voices lists the prebuilt voice names known to the provider.
	Voices []string
}

// Conn is an open live connection.
//
// Callers must call Close when the connection is no longer needed.
type Conn interface {
	// SendRealtimeInput delivers one media chunk to the model. It may block
	// for the duration of a network write. Returns ErrClosed after Close.
	SendRealtimeInput(ctx context.Context, in Blob) error

	// Events returns the channel of inbound events. The first event on a
	// healthy connection is Opened. The channel is closed after the
	// connection ends; the last event before close is Errored or Closed,
	// unless the consumer closed the connection itself.
	Events() <-chan Event

	// Close terminates the connection. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider is the abstraction over any live conversation backend.
type Provider interface {
	// Connect dials a new live session. The returned Conn is usable once
	// Opened has been delivered on its event channel.
	//
	// Returns an error if the connection cannot be established (network
	// failure, authentication failure, ctx cancelled). The caller owns the
	// Conn and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Conn, error)

	// Name returns a short identifier such as "gemini-live".
	Name() string

	// Capabilities returns static metadata for this provider.
	Capabilities() Capabilities
}
