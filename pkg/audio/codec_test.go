package audio_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

func TestEncodeFloat32(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale negative", -1, -32768},
		{"full scale positive clamps", 1, 32767},
		{"overdriven positive", 1.7, 32767},
		{"overdriven negative", -3, -32768},
		{"truncates toward zero", 0.00004, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.EncodeFloat32([]float32{tt.in}))
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("EncodeFloat32(%v) = %v, want [%d]", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeFloat32_NaN(t *testing.T) {
	t.Parallel()
	got := bytesToSamples(audio.EncodeFloat32([]float32{float32(math.NaN())}))
	if got[0] != 0 {
		t.Errorf("NaN encoded as %d, want 0", got[0])
	}
}

func TestDecodePCM16(t *testing.T) {
	t.Parallel()
	got, err := audio.DecodePCM16(samplesToBytes([]int16{0, 16384, -32768, 32767}))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecodePCM16_Errors(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodePCM16([]byte{1, 2, 3}); !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("odd payload: err = %v, want ErrOddLength", err)
	}
	if _, err := audio.DecodePCM16(nil); !errors.Is(err, audio.ErrEmptyPCM) {
		t.Errorf("empty payload: err = %v, want ErrEmptyPCM", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()
	const tolerance = 1.0 / 32768
	in := make([]float32, 2001)
	for i := range in {
		in[i] = float32(i-1000) / 1000 * 0.999
	}
	out, err := audio.DecodePCM16(audio.EncodeFloat32(in))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > tolerance {
			t.Fatalf("sample %d: %v decoded as %v (diff %v)", i, in[i], out[i], d)
		}
	}
}

func TestPCMMIMEType(t *testing.T) {
	t.Parallel()
	if got := audio.PCMMIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Errorf("PCMMIMEType(16000) = %q", got)
	}

	tests := []struct {
		mime   string
		want   int
		wantOK bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/PCM; rate=16000", 16000, true},
		{"audio/pcm", 0, false},
		{"audio/pcm;rate=abc", 0, false},
		{"audio/wav;rate=16000", 0, false},
	}
	for _, tt := range tests {
		rate, ok := audio.ParsePCMMIMEType(tt.mime)
		if rate != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePCMMIMEType(%q) = %d, %v; want %d, %v", tt.mime, rate, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSamplesDuration(t *testing.T) {
	t.Parallel()
	if got := audio.SamplesDuration(24000, 24000); got != time.Second {
		t.Errorf("SamplesDuration(24000, 24000) = %v", got)
	}
	if got := audio.SamplesDuration(4096, 16000); got != 256*time.Millisecond {
		t.Errorf("SamplesDuration(4096, 16000) = %v", got)
	}
	if got := audio.DurationSamples(500*time.Millisecond, 16000); got != 8000 {
		t.Errorf("DurationSamples(500ms, 16000) = %d", got)
	}
	if got := audio.SamplesDuration(10, 0); got != 0 {
		t.Errorf("zero rate: got %v", got)
	}
}

func TestDurationSamples_InvertsSamplesDuration(t *testing.T) {
	t.Parallel()
	for _, rate := range []int{16000, 22050, 24000, 44100, 48000} {
		for _, n := range []int{1, 999, 1000, 1001, 4096, 24001} {
			// Cursor sums must also come back exact.
			d := audio.SamplesDuration(n, rate) + audio.SamplesDuration(n, rate)
			if got := audio.DurationSamples(audio.SamplesDuration(n, rate), rate); got != n {
				t.Errorf("rate %d: DurationSamples(SamplesDuration(%d)) = %d", rate, n, got)
			}
			if got := audio.DurationSamples(d, rate); got != 2*n {
				t.Errorf("rate %d: two chunks of %d map to %d samples", rate, n, got)
			}
		}
	}
}
