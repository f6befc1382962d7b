package conversation

import (
	"log/slog"

	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/audio/arbiter"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

const (
	// DefaultFrameSize is the number of samples per microphone frame.
	DefaultFrameSize = 4096
	// DefaultCaptureRate is the microphone sample rate sent to the model.
	DefaultCaptureRate = 16000
	// DefaultPlaybackRate is the sample rate of the model's speech.
	DefaultPlaybackRate = 24000
	// DefaultOutboundBuffer is the number of frames the outbound queue holds.
	DefaultOutboundBuffer = 8
)

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithArbiter registers every session with a as the active player, stopping
// whatever else was playing.
func WithArbiter(a *arbiter.Arbiter) Option {
	return func(c *Controller) { c.arbiter = a }
}

// WithSessionConfig sets the configuration sent to the provider on connect.
func WithSessionConfig(cfg live.SessionConfig) Option {
	return func(c *Controller) { c.sessionCfg = cfg }
}

// WithFrameSize sets the microphone frame size in samples.
func WithFrameSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.frameSize = n
		}
	}
}

// WithSampleRates sets the capture and playback sample rates.
func WithSampleRates(capture, playback int) Option {
	return func(c *Controller) {
		if capture > 0 {
			c.captureRate = capture
		}
		if playback > 0 {
			c.playbackRate = playback
		}
	}
}

// WithOutboundBuffer sets the outbound queue capacity in frames.
func WithOutboundBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.outboundBuffer = n
		}
	}
}

// WithLineHandler registers fn to be called for each finalised transcript
// line. fn runs on the session's event goroutine and must not block.
func WithLineHandler(fn func(Line)) Option {
	return func(c *Controller) { c.onLine = fn }
}
