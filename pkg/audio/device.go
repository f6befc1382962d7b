// Package audio defines the device abstractions, PCM codec, and format
// conversion helpers used by the live conversation pipeline.
//
// The two device abstractions are:
//
//   - [Microphone] opens an [InputStream] that delivers fixed-size frames of
//     float samples in the range [-1, 1].
//   - [Output] opens an [OutputDevice] that accepts sample buffers scheduled
//     at an absolute time on the device clock and reports when each one ends.
//
// Concrete implementations live in audio/device (process-backed) and
// audio/mock (scripted, for tests). This package lives under pkg/ so that
// platform adapters outside the module can implement both interfaces.
package audio

import (
	"context"
	"time"
)

// Microphone is the capture side of the audio hardware.
//
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Open acquires the input device and begins capturing mono audio in the
	// given format. Every frame delivered on the returned stream holds exactly
	// frameSize samples. Returns an error if the device cannot be acquired
	// (permission denied, device missing, ctx cancelled).
	Open(ctx context.Context, format Format, frameSize int) (InputStream, error)
}

// InputStream is an open capture stream.
type InputStream interface {
	// Frames returns the channel of captured frames. The channel is closed
	// when the stream ends, either through Close or a device failure.
	Frames() <-chan []float32

	// Err returns the error that ended the stream early, or nil.
	Err() error

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Output is the playback side of the audio hardware.
type Output interface {
	// Open acquires a rendering context in the given format.
	Open(format Format) (OutputDevice, error)
}

// OutputDevice is an open rendering context with its own clock.
//
// Implementations must be safe for concurrent use.
type OutputDevice interface {
	// Now returns the current position of the device clock. The clock starts
	// at zero when the device is opened and never goes backwards.
	Now() time.Duration

	// Schedule queues samples for playback starting at the device time at.
	// A start time in the past plays immediately.
	Schedule(samples []float32, at time.Duration) (Voice, error)

	// Close stops every scheduled voice and releases the device. Calling
	// Close more than once is safe.
	Close() error
}

// Voice is a handle to one scheduled buffer.
type Voice interface {
	// Duration is the playback length of the buffer.
	Duration() time.Duration

	// Stop cancels playback. Stopping an already finished voice is a no-op.
	Stop()

	// Done is closed once playback has finished or the voice was stopped.
	Done() <-chan struct{}
}
