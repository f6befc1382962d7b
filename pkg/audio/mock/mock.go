// Package mock provides in-memory implementations of the [audio.Microphone]
// and [audio.Output] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields that
// the test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Microphone{}
//	out := &mock.Output{}
//	// ... start the code under test ...
//	mic.LastStream().Push(make([]float32, 4096))
//	dev := out.LastDevice()
//	dev.Advance(250 * time.Millisecond) // voices ending before now finish
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

// ErrClosed is returned by [Device.Schedule] after the device was closed.
var ErrClosed = errors.New("mock: device closed")

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by [Microphone.Open].
	OpenErr error

	// Buffer is the capacity of each opened stream's frame channel.
	// Defaults to 64 when zero.
	Buffer int

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// LastFormat and LastFrameSize hold the arguments of the most recent Open.
	LastFormat    audio.Format
	LastFrameSize int

	streams []*Stream
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(ctx context.Context, format audio.Format, frameSize int) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	m.LastFormat = format
	m.LastFrameSize = frameSize
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := m.Buffer
	if buf <= 0 {
		buf = 64
	}
	s := &Stream{frames: make(chan []float32, buf)}
	m.streams = append(m.streams, s)
	return s, nil
}

// Streams returns every stream opened so far, oldest first.
func (m *Microphone) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Stream, len(m.streams))
	copy(out, m.streams)
	return out
}

// LastStream returns the most recently opened stream, or nil.
func (m *Microphone) LastStream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// Stream is a mock [audio.InputStream] fed by [Stream.Push].
type Stream struct {
	mu     sync.Mutex
	frames chan []float32
	closed bool
	err    error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Push delivers one frame to the consumer. It reports false if the stream is
// closed or its buffer is full.
func (s *Stream) Push(frame []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// Fail ends the stream with err, as a device failure would.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frames)
}

// Frames implements [audio.InputStream].
func (s *Stream) Frames() <-chan []float32 { return s.frames }

// Err implements [audio.InputStream].
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.InputStream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Closed reports whether the stream has been closed or failed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock implementation of [audio.Output] that opens [Device]s
// driven by a manual clock.
type Output struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by [Output.Open].
	OpenErr error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	devices []*Device
}

// Open implements [audio.Output].
func (o *Output) Open(format audio.Format) (audio.OutputDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CallCountOpen++
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	d := &Device{Format: format}
	o.devices = append(o.devices, d)
	return d, nil
}

// LastDevice returns the most recently opened device, or nil.
func (o *Output) LastDevice() *Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.devices) == 0 {
		return nil
	}
	return o.devices[len(o.devices)-1]
}

// Device is a mock [audio.OutputDevice]. Its clock only moves when the test
// calls [Device.Advance] or [Device.SetNow].
type Device struct {
	// Format is the format the device was opened with.
	Format audio.Format

	mu     sync.Mutex
	now    time.Duration
	voices []*Voice
	closed bool

	// ScheduleErr, if non-nil, is returned by [Device.Schedule].
	ScheduleErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Now implements [audio.OutputDevice].
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Schedule implements [audio.OutputDevice]. The voice is recorded with the
// requested start time; it finishes once the clock passes its end.
func (d *Device) Schedule(samples []float32, at time.Duration) (audio.Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ScheduleErr != nil {
		return nil, d.ScheduleErr
	}
	if d.closed {
		return nil, ErrClosed
	}
	v := &Voice{
		Samples: samples,
		Start:   max(at, d.now),
		dur:     audio.SamplesDuration(len(samples), d.Format.SampleRate),
		done:    make(chan struct{}),
	}
	d.voices = append(d.voices, v)
	return v, nil
}

// Advance moves the clock forward by step and finishes every voice whose end
// is at or before the new time.
func (d *Device) Advance(step time.Duration) {
	d.SetNow(d.Now() + step)
}

// SetNow moves the clock to t (never backwards) and finishes every voice whose
// end is at or before t.
func (d *Device) SetNow(t time.Duration) {
	d.mu.Lock()
	if t > d.now {
		d.now = t
	}
	var ended []*Voice
	for _, v := range d.voices {
		if v.Start+v.dur <= d.now {
			ended = append(ended, v)
		}
	}
	d.mu.Unlock()
	for _, v := range ended {
		v.finish(false)
	}
}

// Voices returns every voice scheduled so far, in scheduling order.
func (d *Device) Voices() []*Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Voice, len(d.voices))
	copy(out, d.voices)
	return out
}

// Close implements [audio.OutputDevice].
func (d *Device) Close() error {
	d.mu.Lock()
	d.CallCountClose++
	d.closed = true
	voices := append([]*Voice(nil), d.voices...)
	d.mu.Unlock()
	for _, v := range voices {
		v.Stop()
	}
	return nil
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Voice is a mock [audio.Voice].
type Voice struct {
	// Samples is the scheduled buffer.
	Samples []float32

	// Start is the effective start time on the device clock.
	Start time.Duration

	dur  time.Duration
	done chan struct{}

	mu       sync.Mutex
	finished bool
	stopped  bool
}

// Duration implements [audio.Voice].
func (v *Voice) Duration() time.Duration { return v.dur }

// End returns Start + Duration.
func (v *Voice) End() time.Duration { return v.Start + v.dur }

// Stop implements [audio.Voice].
func (v *Voice) Stop() { v.finish(true) }

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stopped reports whether the voice was cut short by Stop.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Finished reports whether the voice has ended, naturally or by Stop.
func (v *Voice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished
}

func (v *Voice) finish(stopped bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.finished {
		return
	}
	v.finished = true
	v.stopped = stopped
	close(v.done)
}

// Compile-time interface assertions.
var (
	_ audio.Microphone   = (*Microphone)(nil)
	_ audio.InputStream  = (*Stream)(nil)
	_ audio.Output       = (*Output)(nil)
	_ audio.OutputDevice = (*Device)(nil)
	_ audio.Voice        = (*Voice)(nil)
)
