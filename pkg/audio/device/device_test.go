package device_test

import (
	"bytes"
	"encoding/binary"
	"slices"
	"testing"
	"testing/iotest"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
	"github.com/MrWong99/kisanlive/pkg/audio/device"
)

func constantPCM(samples int, value int16) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func TestExpandArgs(t *testing.T) {
	t.Parallel()
	got := device.ExpandArgs(
		[]string{"-r", "{rate}", "-c", "{channels}", "-t", "raw"},
		audio.Format{SampleRate: 16000, Channels: 1},
	)
	want := []string{"-r", "16000", "-c", "1", "-t", "raw"}
	if !slices.Equal(got, want) {
		t.Errorf("ExpandArgs = %v, want %v", got, want)
	}
}

func TestReadFrames_SameFormat(t *testing.T) {
	t.Parallel()
	format := audio.Format{SampleRate: 16000, Channels: 1}
	out := make(chan []float32, 16)
	// 1000 samples: three 20ms blocks (960 samples) convert, the rest is partial.
	r := iotest.OneByteReader(bytes.NewReader(constantPCM(1000, 16384)))
	if err := device.ReadFrames(r, format, format, 160, out); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	close(out)

	var frames [][]float32
	for f := range out {
		frames = append(frames, f)
	}
	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 6", len(frames))
	}
	for i, f := range frames {
		if len(f) != 160 {
			t.Errorf("frame %d: %d samples, want 160", i, len(f))
		}
		if f[0] != 0.5 {
			t.Errorf("frame %d: first sample %v, want 0.5", i, f[0])
		}
	}
}

func TestReadFrames_StereoDownsample(t *testing.T) {
	t.Parallel()
	native := audio.Format{SampleRate: 32000, Channels: 2}
	target := audio.Format{SampleRate: 16000, Channels: 1}
	out := make(chan []float32, 16)
	// Two 20ms blocks of 32 kHz stereo become 640 mono samples at 16 kHz.
	pcm := constantPCM(1280*2, 1000)
	if err := device.ReadFrames(bytes.NewReader(pcm), native, target, 320, out); err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	close(out)

	var n int
	for f := range out {
		n++
		if len(f) != 320 {
			t.Fatalf("frame has %d samples, want 320", len(f))
		}
		if want := float32(1000) / 32768; f[100] != want {
			t.Errorf("sample = %v, want %v", f[100], want)
		}
	}
	if n != 2 {
		t.Errorf("got %d frames, want 2", n)
	}
}

func TestRenderer_MixesAndFinishes(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	format := audio.Format{SampleRate: 1000, Channels: 1}
	r := device.NewRenderer(&buf, format, func() time.Duration { return 0 })

	a, err := r.Schedule([]float32{0.25, 0.25, 0.25, 0.25}, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	b, err := r.Schedule([]float32{0.25, 0.25}, 2*time.Millisecond)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := r.Render(3); err != nil {
		t.Fatalf("Render: %v", err)
	}
	select {
	case <-a.Done():
		t.Fatal("voice a finished early")
	default:
	}

	if err := r.Render(6); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for name, v := range map[string]audio.Voice{"a": a, "b": b} {
		select {
		case <-v.Done():
		default:
			t.Errorf("voice %s not finished", name)
		}
	}

	got := make([]int16, buf.Len()/2)
	for i := range got {
		got[i] = int16(binary.LittleEndian.Uint16(buf.Bytes()[i*2:]))
	}
	want := []int16{8192, 8192, 16384, 16384, 0, 0}
	if !slices.Equal(got, want) {
		t.Errorf("rendered %v, want %v", got, want)
	}
}

func TestRenderer_LateStartMovesToCursor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := device.NewRenderer(&buf, audio.Format{SampleRate: 1000, Channels: 1}, func() time.Duration { return 0 })
	if err := r.Render(5); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := r.Schedule([]float32{0.5}, time.Millisecond); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Render(6); err != nil {
		t.Fatalf("Render: %v", err)
	}
	last := int16(binary.LittleEndian.Uint16(buf.Bytes()[10:]))
	if last != 16384 {
		t.Errorf("late voice rendered as %d, want 16384", last)
	}
}

func TestRenderer_BackToBackChunksAbut(t *testing.T) {
	t.Parallel()
	const rate, n = 24000, 1000
	var buf bytes.Buffer
	r := device.NewRenderer(&buf, audio.Format{SampleRate: rate, Channels: 1}, func() time.Duration { return 0 })

	chunk := make([]float32, n)
	for i := range chunk {
		chunk[i] = 0.25
	}
	if _, err := r.Schedule(chunk, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := r.Schedule(chunk, audio.SamplesDuration(n, rate)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := r.Render(2 * n); err != nil {
		t.Fatalf("Render: %v", err)
	}

	for i := range 2 * n {
		got := int16(binary.LittleEndian.Uint16(buf.Bytes()[i*2:]))
		if got != 8192 {
			t.Fatalf("sample %d = %d, want 8192", i, got)
		}
	}
}

func TestRenderer_StopAndClose(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	r := device.NewRenderer(&buf, audio.Format{SampleRate: 1000, Channels: 2}, func() time.Duration { return 0 })
	v, err := r.Schedule([]float32{0.5, 0.5}, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	v.Stop()
	<-v.Done()
	if err := r.Render(2); err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Stereo output: two frames of silence.
	if !bytes.Equal(buf.Bytes(), make([]byte, 8)) {
		t.Errorf("stopped voice was rendered: %v", buf.Bytes())
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Schedule([]float32{0.1}, 0); err != device.ErrDeviceClosed {
		t.Errorf("Schedule after Close: err = %v, want ErrDeviceClosed", err)
	}
}
