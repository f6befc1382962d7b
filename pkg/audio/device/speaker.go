package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

// ErrDeviceClosed is returned by Schedule after the device was closed.
var ErrDeviceClosed = errors.New("device: output closed")

// defaultRenderPeriod is how often the speaker mixes and writes audio.
const defaultRenderPeriod = 20 * time.Millisecond

// CommandSpeaker plays audio through a process that reads raw s16le PCM from
// its stdin.
//
// Example (ALSA):
//
//	spk := &device.CommandSpeaker{
//	    Command: "aplay",
//	    Args:    []string{"-q", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-t", "raw", "-"},
//	}
type CommandSpeaker struct {
	// Command is the executable to run.
	Command string

	// Args are passed to Command after placeholder expansion.
	Args []string

	// Period is the mixing interval. Defaults to 20ms.
	Period time.Duration
}

// Open implements [audio.Output]. It starts the playback process and a render
// loop that writes continuously, emitting silence while no voice is playing.
func (s *CommandSpeaker) Open(format audio.Format) (audio.OutputDevice, error) {
	if s.Command == "" {
		return nil, errors.New("device: speaker command is empty")
	}
	proc := newProcess(context.Background(), s.Command, ExpandArgs(s.Args, format))
	stdin, err := proc.cmd.StdinPipe()
	if err != nil {
		proc.cancel()
		return nil, fmt.Errorf("device: create stdin pipe: %w", err)
	}
	if err := proc.cmd.Start(); err != nil {
		proc.cancel()
		if closeErr := stdin.Close(); closeErr != nil {
			slog.Warn("device: failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("device: start %s: %w", s.Command, err)
	}

	period := s.Period
	if period <= 0 {
		period = defaultRenderPeriod
	}
	start := time.Now()
	r := NewRenderer(stdin, format, func() time.Duration { return time.Since(start) })
	dev := &speakerDevice{Renderer: r, proc: proc, stdin: stdin, done: make(chan struct{})}
	go dev.loop(period)
	slog.Debug("device: speaker opened", "command", s.Command, "format", format.String())
	return dev, nil
}

type speakerDevice struct {
	*Renderer
	proc  *process
	stdin io.WriteCloser
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (d *speakerDevice) loop(period time.Duration) {
	defer close(d.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		if d.Renderer.isClosed() {
			return
		}
		if err := d.Renderer.RenderUntil(d.Renderer.Now()); err != nil {
			slog.Warn("device: speaker write failed", "error", err)
			d.Renderer.Close()
			return
		}
	}
}

// Close stops the render loop and the playback process.
func (d *speakerDevice) Close() error {
	d.closeOnce.Do(func() {
		d.Renderer.Close()
		// Closing stdin unblocks a write stuck on a stalled process.
		closeErr := d.stdin.Close()
		<-d.done
		waitErr := d.proc.wait()
		d.closeErr = errors.Join(closeErr, waitErr)
	})
	return d.closeErr
}

// Renderer mixes scheduled voices into a continuous s16le stream written to
// an [io.Writer]. Its timeline is measured in samples rendered so far; the
// clock function reports real device time.
//
// Renderer implements [audio.OutputDevice]. It is safe for concurrent use.
type Renderer struct {
	w      io.Writer
	format audio.Format
	clock  func() time.Duration

	mu     sync.Mutex
	cursor int64 // samples rendered
	voices []*voice
	closed bool
}

// NewRenderer returns a Renderer writing to w in format, using clock as the
// device time source. Only mono input voices are supported; for a stereo
// format each sample is duplicated to both channels on output.
func NewRenderer(w io.Writer, format audio.Format, clock func() time.Duration) *Renderer {
	return &Renderer{w: w, format: format, clock: clock}
}

// Now implements [audio.OutputDevice].
func (r *Renderer) Now() time.Duration { return r.clock() }

// Schedule implements [audio.OutputDevice]. Starts before the render cursor
// are moved to the cursor.
func (r *Renderer) Schedule(samples []float32, at time.Duration) (audio.Voice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrDeviceClosed
	}
	start := int64(audio.DurationSamples(at, r.format.SampleRate))
	start = max(start, r.cursor)
	v := &voice{
		samples: samples,
		start:   start,
		dur:     audio.SamplesDuration(len(samples), r.format.SampleRate),
		done:    make(chan struct{}),
	}
	r.voices = append(r.voices, v)
	return v, nil
}

// RenderUntil mixes and writes every sample up to device time t.
func (r *Renderer) RenderUntil(t time.Duration) error {
	return r.Render(int64(audio.DurationSamples(t, r.format.SampleRate)))
}

// Render mixes and writes the samples in [cursor, upTo). Voices that end
// within the range are finished.
func (r *Renderer) Render(upTo int64) error {
	r.mu.Lock()
	from := r.cursor
	if r.closed || upTo <= from {
		r.mu.Unlock()
		return nil
	}
	mix := make([]float32, upTo-from)
	var finished []*voice
	live := r.voices[:0]
	for _, v := range r.voices {
		if v.stopped.Load() {
			continue
		}
		end := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(end, upTo)
		for i := lo; i < hi; i++ {
			mix[i-from] += v.samples[i-v.start]
		}
		if end <= upTo {
			finished = append(finished, v)
			continue
		}
		live = append(live, v)
	}
	clear(r.voices[len(live):])
	r.voices = live
	r.cursor = upTo
	r.mu.Unlock()

	pcm := audio.EncodeFloat32(mix)
	if r.format.Channels == 2 {
		pcm = audio.MonoToStereo(pcm)
	}
	_, err := r.w.Write(pcm)

	for _, v := range finished {
		v.finish()
	}
	return err
}

// Close stops every voice. Later calls to Schedule fail with ErrDeviceClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	voices := r.voices
	r.voices = nil
	r.closed = true
	r.mu.Unlock()
	for _, v := range voices {
		v.Stop()
	}
	return nil
}

func (r *Renderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type voice struct {
	samples []float32
	start   int64
	dur     time.Duration
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func (v *voice) Duration() time.Duration { return v.dur }

func (v *voice) Stop() {
	v.stopped.Store(true)
	v.finish()
}

func (v *voice) Done() <-chan struct{} { return v.done }

func (v *voice) finish() { v.once.Do(func() { close(v.done) }) }

var (
	_ audio.Microphone   = (*CommandMicrophone)(nil)
	_ audio.Output       = (*CommandSpeaker)(nil)
	_ audio.OutputDevice = (*Renderer)(nil)
	_ audio.OutputDevice = (*speakerDevice)(nil)
)
