package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

// readChunk is the number of bytes read from the capture process per call.
const readChunk = 4096

// CommandMicrophone captures audio from a process that writes raw s16le PCM
// to its stdout.
//
// Example (ALSA):
//
//	mic := &device.CommandMicrophone{
//	    Command: "arecord",
//	    Args:    []string{"-q", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-t", "raw", "-"},
//	}
type CommandMicrophone struct {
	// Command is the executable to run.
	Command string

	// Args are passed to Command after placeholder expansion.
	Args []string

	// Native is the format the process emits. When zero, the process is asked
	// for the requested format directly. Otherwise frames are downmixed and
	// resampled to the requested format.
	Native audio.Format
}

// Open implements [audio.Microphone]. The process runs until the stream is
// closed or ctx is cancelled.
func (m *CommandMicrophone) Open(ctx context.Context, format audio.Format, frameSize int) (audio.InputStream, error) {
	if m.Command == "" {
		return nil, errors.New("device: microphone command is empty")
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("device: invalid frame size %d", frameSize)
	}
	native := m.Native
	if native.SampleRate == 0 {
		native = format
	}

	proc := newProcess(ctx, m.Command, ExpandArgs(m.Args, native))
	stdout, err := proc.cmd.StdoutPipe()
	if err != nil {
		proc.cancel()
		return nil, fmt.Errorf("device: create stdout pipe: %w", err)
	}
	if err := proc.cmd.Start(); err != nil {
		proc.cancel()
		return nil, fmt.Errorf("device: start %s: %w", m.Command, err)
	}

	s := &captureStream{
		proc:   proc,
		frames: make(chan []float32, 8),
		done:   make(chan struct{}),
	}
	go s.run(stdout, native, format, frameSize)
	slog.Debug("device: microphone opened", "command", m.Command, "native", native.String(), "format", format.String())
	return s, nil
}

type captureStream struct {
	proc   *process
	frames chan []float32
	done   chan struct{}

	mu      sync.Mutex
	err     error
	closing bool

	closeOnce sync.Once
}

func (s *captureStream) run(r io.Reader, native, target audio.Format, frameSize int) {
	defer close(s.done)
	readErr := ReadFrames(r, native, target, frameSize, s.frames)
	if readErr != nil {
		s.proc.cancel()
	}
	waitErr := s.proc.wait()

	s.mu.Lock()
	if !s.closing {
		s.err = errors.Join(readErr, waitErr)
	}
	s.mu.Unlock()
	close(s.frames)
}

// Frames implements [audio.InputStream].
func (s *captureStream) Frames() <-chan []float32 { return s.frames }

// Err implements [audio.InputStream].
func (s *captureStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements [audio.InputStream]. It interrupts the process and waits
// for it to exit.
func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.proc.cancel()
		// Unblock a pending send so the reader can observe EOF.
		go audio.Drain(s.frames)
		<-s.done
	})
	return nil
}

// ReadFrames reads s16le PCM in the native format from r, converts it to the
// target format, and sends frames of exactly frameSize float samples on out.
// Conversion runs on 20ms blocks of native audio so that resampling never sees
// a fragment shorter than one output sample. A trailing partial frame is
// discarded. It returns nil on EOF.
func ReadFrames(r io.Reader, native, target audio.Format, frameSize int, out chan<- []float32) error {
	conv := audio.FormatConverter{Target: target}
	block := max(native.SampleRate/50, 1) * 2 * native.Channels
	frameBytes := frameSize * 2 * target.Channels

	buf := make([]byte, readChunk)
	var raw, pending []byte
	for {
		n, err := r.Read(buf)
		raw = append(raw, buf[:n]...)
		for len(raw) >= block {
			frame := conv.Convert(audio.AudioFrame{
				Data:       raw[:block],
				SampleRate: native.SampleRate,
				Channels:   native.Channels,
			})
			pending = append(pending, frame.Data...)
			raw = append(raw[:0], raw[block:]...)
		}
		for len(pending) >= frameBytes {
			samples, decErr := audio.DecodePCM16(pending[:frameBytes])
			if decErr != nil {
				return decErr
			}
			out <- samples
			pending = append(pending[:0], pending[frameBytes:]...)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
