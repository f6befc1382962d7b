// Package conversation implements the live voice conversation session
// manager: it wires a microphone, a speaker, and a remote live model into one
// duplex session and exposes its state.
//
// A [Controller] runs at most one session at a time. Each session owns its
// microphone stream, output device, and remote connection, and releases all
// three exactly once when it ends, whether by Stop, a setup failure, or the
// remote side.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/audio"
	"github.com/MrWong99/kisanlive/pkg/audio/arbiter"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

var _ arbiter.Player = (*Controller)(nil)

// Controller owns the conversation lifecycle.
//
// Status moves idle → connecting → listening ⇄ speaking → ended. Any state
// may move to ended. Start is accepted from idle and ended only.
//
// All methods are safe for concurrent use.
type Controller struct {
	provider live.Provider
	mic      audio.Microphone
	out      audio.Output

	log            *slog.Logger
	metrics        *observe.Metrics
	arbiter        *arbiter.Arbiter
	sessionCfg     live.SessionConfig
	frameSize      int
	captureRate    int
	playbackRate   int
	outboundBuffer int
	onLine         func(Line)

	transcript Accumulator

	mu     sync.Mutex
	status Status
	reason EndReason
	err    error
	sess   *session
	subs   map[chan StatusChange]struct{}
}

// New creates a Controller in the idle state.
func New(p live.Provider, mic audio.Microphone, out audio.Output, opts ...Option) *Controller {
	c := &Controller{
		provider:       p,
		mic:            mic,
		out:            out,
		log:            slog.Default(),
		frameSize:      DefaultFrameSize,
		captureRate:    DefaultCaptureRate,
		playbackRate:   DefaultPlaybackRate,
		outboundBuffer: DefaultOutboundBuffer,
		sessionCfg: live.SessionConfig{
			InputTranscription:  true,
			OutputTranscription: true,
		},
		subs: make(map[chan StatusChange]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// session holds the resources of one conversation. Fields guarded by mu are
// filled in while Start runs and may be claimed by a concurrent teardown at
// any point; adopt refuses new resources once teardown has begun.
type session struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	started time.Time

	mu      sync.Mutex
	torn    bool
	stream  audio.InputStream
	capture *capture
	dev     audio.OutputDevice
	sched   *Scheduler
	conn    live.Conn
	out     *outbound
	release func()

	wg   sync.WaitGroup
	once sync.Once
}

// adopt runs fn under the session lock unless teardown has begun.
func (s *session) adopt(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn {
		return false
	}
	fn()
	return true
}

func (s *session) isTorn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torn
}

// teardown releases every resource the session holds. Only the first call
// has any effect.
func (s *session) teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.torn = true
		sched, out, stream, dev, conn, release := s.sched, s.out, s.stream, s.dev, s.conn, s.release
		s.mu.Unlock()

		s.cancel()
		var errs []error
		if sched != nil {
			sched.Close()
		}
		if out != nil {
			out.close()
		}
		if stream != nil {
			errs = append(errs, stream.Close())
		}
		if dev != nil {
			errs = append(errs, dev.Close())
		}
		if conn != nil {
			errs = append(errs, conn.Close())
		}
		if release != nil {
			release()
		}
		if err := errors.Join(errs...); err != nil {
			s.log.Debug("conversation: teardown released resources with errors", "err", err)
		}
	})
}

// Start opens a new session. It returns once the devices are open and the
// remote connection is established; the session becomes listening when the
// remote side acknowledges it.
//
// Start returns [ErrSessionActive] while a session is running. On any setup
// failure the session ends with [ReasonSetupFailed] and the error is returned.
// If Stop interrupts the setup, Start returns [ErrStopped].
func (c *Controller) Start(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := uuid.NewString()
	s := &session{
		id:      id,
		ctx:     sessCtx,
		cancel:  cancel,
		log:     c.log.With("session_id", id),
		started: time.Now(),
	}

	c.mu.Lock()
	if c.status.Active() {
		c.mu.Unlock()
		cancel()
		return ErrSessionActive
	}
	prev := c.sess
	c.sess = s
	c.reason, c.err = ReasonNone, nil
	c.setStatusLocked(s, StatusConnecting)
	c.mu.Unlock()

	if prev != nil {
		prev.teardown()
		prev.wg.Wait()
	}
	c.transcript.Reset()
	c.metrics.RecordSessionStart(ctx)
	s.log.Info("conversation: starting", "provider", c.provider.Name())

	if c.arbiter != nil {
		release := c.arbiter.Register(c)
		if !s.adopt(func() { s.release = release }) {
			release()
			return ErrStopped
		}
	}

	stream, err := c.mic.Open(s.ctx, audio.Format{SampleRate: c.captureRate, Channels: 1}, c.frameSize)
	if err != nil {
		return c.failSetup(s, fmt.Errorf("conversation: open microphone: %w", err))
	}
	capt := newCapture(stream, c.captureRate, s.log, c.metrics)
	if !s.adopt(func() {
		s.stream, s.capture = stream, capt
		s.wg.Add(1)
	}) {
		_ = stream.Close()
		return ErrStopped
	}
	go func() {
		defer s.wg.Done()
		capt.run(s.ctx)
	}()

	dev, err := c.out.Open(audio.Format{SampleRate: c.playbackRate, Channels: 1})
	if err != nil {
		return c.failSetup(s, fmt.Errorf("conversation: open output: %w", err))
	}
	sched := NewScheduler(dev, c.playbackRate, func() { c.handleDrained(s) })
	if !s.adopt(func() { s.dev, s.sched = dev, sched }) {
		_ = dev.Close()
		return ErrStopped
	}

	conn, err := c.connect(ctx, s)
	if err != nil {
		if s.ctx.Err() != nil {
			return ErrStopped
		}
		return c.failSetup(s, fmt.Errorf("conversation: connect: %w", err))
	}
	out := newOutbound(conn, c.outboundBuffer, s.log, c.metrics)
	if !s.adopt(func() {
		s.conn, s.out = conn, out
		s.wg.Add(2)
	}) {
		_ = conn.Close()
		return ErrStopped
	}
	go func() {
		defer s.wg.Done()
		out.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		c.dispatch(s, conn)
	}()
	return nil
}

// connect dials the provider. The attempt is abandoned when either ctx or
// the session is cancelled.
func (c *Controller) connect(ctx context.Context, s *session) (live.Conn, error) {
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	connectCtx, span := observe.StartSpan(connectCtx, "conversation.connect",
		trace.WithAttributes(
			attribute.String("provider", c.provider.Name()),
			attribute.String("session_id", s.id),
		),
	)
	defer span.End()

	c.mu.Lock()
	cfg := c.sessionCfg
	c.mu.Unlock()

	begin := time.Now()
	conn, err := c.provider.Connect(connectCtx, cfg)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.RecordConnect(ctx, c.provider.Name(), status, time.Since(begin))
	observe.LoggerFrom(connectCtx, s.log).Debug("conversation: connect finished",
		"status", status, "duration", time.Since(begin))
	return conn, err
}

func (c *Controller) failSetup(s *session, err error) error {
	s.log.Warn("conversation: setup failed", "err", err)
	c.endSession(s, ReasonSetupFailed, err)
	return err
}

// endSession tears s down and, if it is still the current session, moves the
// controller to ended with reason. Later calls for the same session only
// repeat the (idempotent) teardown.
func (c *Controller) endSession(s *session, reason EndReason, err error) {
	s.teardown()

	c.mu.Lock()
	if c.sess != s || c.status == StatusEnded {
		c.mu.Unlock()
		return
	}
	c.reason, c.err = reason, err
	c.setStatusLocked(s, StatusEnded)
	c.mu.Unlock()

	c.metrics.RecordSessionEnd(context.Background(), reason.String(), s.started)
	s.log.Info("conversation: ended", "reason", reason.String(), "err", err,
		"duration", time.Since(s.started).Round(time.Millisecond))
}

// Stop ends the running session, if any. It is a no-op while idle or after
// the session has already ended. Stop waits for the session's goroutines to
// exit, so it must not be called from a line handler.
func (c *Controller) Stop() {
	c.mu.Lock()
	s, st := c.sess, c.status
	c.mu.Unlock()
	if s == nil || st == StatusIdle {
		return
	}
	c.endSession(s, ReasonStopped, nil)
	s.wg.Wait()
}

// StopPlayback implements [arbiter.Player]. Another player taking over the
// audio output ends the conversation.
func (c *Controller) StopPlayback() {
	go c.Stop()
}

// setStatusLocked changes the status and notifies subscribers. c.mu must be
// held.
func (c *Controller) setStatusLocked(s *session, to Status) {
	from := c.status
	if from == to {
		return
	}
	c.status = to
	change := StatusChange{
		SessionID: s.id,
		From:      from,
		To:        to,
		Reason:    c.reason,
		Err:       c.err,
		At:        time.Now(),
	}
	for ch := range c.subs {
		select {
		case ch <- change:
		default:
		}
	}
	s.log.Debug("conversation: status changed", "from", from.String(), "status", to.String())
}

// SetSessionConfig replaces the provider settings used by the next Start.
// A running session is not affected.
func (c *Controller) SetSessionConfig(cfg live.SessionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCfg = cfg
}

// SessionConfig returns the provider settings used by the next Start.
func (c *Controller) SessionConfig() live.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionCfg
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// EndReason returns why the last session ended, or ReasonNone.
func (c *Controller) EndReason() EndReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Err returns the error that ended the last session. It is nil after a
// clean Stop and while a session is running.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SessionID returns the identifier of the current or last session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Transcript returns a copy of the finalised transcript lines of the current
// or last session.
func (c *Controller) Transcript() []Line {
	return c.transcript.Lines()
}

// Subscribe returns a channel of status changes and a function that
// unsubscribes and closes it. Delivery never blocks the controller: a
// subscriber that falls behind misses changes, and should read Status for
// the latest state.
func (c *Controller) Subscribe() (<-chan StatusChange, func()) {
	ch := make(chan StatusChange, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}
