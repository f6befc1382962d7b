package conversation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/audio"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// dispatch routes every event of conn to the session until the connection's
// event stream ends or the session ends.
func (c *Controller) dispatch(s *session, conn live.Conn) {
	ctx := s.ctx
	for ev := range conn.Events() {
		if s.isTorn() {
			// Events buffered before a local close belong to an ended session.
			continue
		}
		switch ev := ev.(type) {
		case live.Opened:
			c.handleOpened(s)
		case live.AudioPayload:
			c.handleAudio(ctx, s, ev)
		case live.TranscriptFragment:
			c.transcript.Append(ev.Role, ev.Text)
		case live.TurnComplete:
			c.handleTurnComplete(ctx, s)
		case live.Interrupted:
			c.handleInterrupted(s)
		case live.Errored:
			s.log.Warn("conversation: remote error", "err", ev.Err)
			c.endSession(s, ReasonRemoteError, fmt.Errorf("conversation: remote: %w", ev.Err))
			return
		case live.Closed:
			c.endSession(s, ReasonRemoteClosed, closedErr(ev.Reason))
			return
		default:
			s.log.Debug("conversation: ignoring unknown event", "type", fmt.Sprintf("%T", ev))
		}
	}
	if !s.isTorn() {
		c.endSession(s, ReasonRemoteClosed, ErrRemoteClosed)
	}
}

func closedErr(reason string) error {
	if reason == "" {
		return ErrRemoteClosed
	}
	return fmt.Errorf("%w: %s", ErrRemoteClosed, reason)
}

// handleOpened moves a connecting session to listening. Capture is attached
// before the status changes, so every frame recorded after listening is
// observable reaches the outbound queue.
func (c *Controller) handleOpened(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || c.status != StatusConnecting {
		return
	}
	s.mu.Lock()
	capt, out := s.capture, s.out
	s.mu.Unlock()
	if capt != nil && out != nil {
		capt.attach(out)
	}
	c.setStatusLocked(s, StatusListening)
	s.log.Info("conversation: listening")
}

// handleAudio schedules one model audio chunk. The switch to speaking happens
// under the controller lock together with Enqueue so that a drain can never
// be observed before the speaking transition.
func (c *Controller) handleAudio(ctx context.Context, s *session, ev live.AudioPayload) {
	pcm := ev.Data
	if rate, ok := audio.ParsePCMMIMEType(ev.MIMEType); ok && rate != c.playbackRate {
		pcm = audio.ResampleMono16(pcm, rate, c.playbackRate)
	}

	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || (c.status != StatusListening && c.status != StatusSpeaking) || sched == nil {
		c.metrics.ChunksDropped.Add(ctx, 1, metric.WithAttributes(observe.Attr("cause", "inactive")))
		return
	}
	if _, err := sched.Enqueue(pcm); err != nil {
		s.log.Debug("conversation: dropping audio chunk", "err", err, "bytes", len(ev.Data))
		c.metrics.ChunksDropped.Add(ctx, 1, metric.WithAttributes(observe.Attr("cause", "decode")))
		return
	}
	c.metrics.ChunksReceived.Add(ctx, 1)
	if c.status == StatusListening {
		c.setStatusLocked(s, StatusSpeaking)
	}
}

// handleDrained returns a speaking session to listening. A chunk enqueued
// between the scheduler emptying and this call keeps the session speaking;
// its own drain ends the turn.
func (c *Controller) handleDrained(s *session) {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || c.status != StatusSpeaking {
		return
	}
	if sched != nil && sched.Playing() > 0 {
		return
	}
	c.setStatusLocked(s, StatusListening)
}

// handleInterrupted cuts the model's audio when the user barges in. Reset
// voices do not report a drain, so the status change happens here.
func (c *Controller) handleInterrupted(s *session) {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || sched == nil {
		return
	}
	sched.Reset()
	if c.status == StatusSpeaking {
		c.setStatusLocked(s, StatusListening)
	}
	s.log.Debug("conversation: playback interrupted")
}

// handleTurnComplete finalises the pending transcript fragments.
func (c *Controller) handleTurnComplete(ctx context.Context, s *session) {
	lines := c.transcript.Flush()
	for _, l := range lines {
		c.metrics.RecordTranscriptLine(ctx, l.Role.String())
		observe.LoggerFrom(ctx, s.log).Debug("conversation: transcript line",
			"role", l.Role.String(), "chars", len(l.Text))
		if c.onLine != nil {
			c.onLine(l)
		}
	}
}
