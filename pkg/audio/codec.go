package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// pcmScale maps float samples in [-1, 1] onto the int16 range.
const pcmScale = 32768

// ErrOddLength is returned by [DecodePCM16] when the payload does not hold a
// whole number of 16-bit samples.
var ErrOddLength = errors.New("audio: odd byte count in PCM data")

// ErrEmptyPCM is returned by [DecodePCM16] for a payload with no samples.
var ErrEmptyPCM = errors.New("audio: empty PCM payload")

// EncodeFloat32 converts float samples to 16-bit signed little-endian PCM.
// Each sample is scaled by 32768 and truncated toward zero; values outside
// the int16 range are clamped, so +1.0 encodes as 32767.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * pcmScale
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to float samples by
// dividing each sample by 32768.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPCM
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / pcmScale
	}
	return out, nil
}

// PCMMIMEType returns the MIME descriptor for raw 16-bit PCM at rate, in the
// form expected by the live endpoint ("audio/pcm;rate=16000").
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParsePCMMIMEType extracts the sample rate from a descriptor produced by
// [PCMMIMEType]. ok is false for any other MIME type or a missing rate.
func ParsePCMMIMEType(mime string) (rate int, ok bool) {
	base, params, _ := strings.Cut(mime, ";")
	if strings.TrimSpace(strings.ToLower(base)) != "audio/pcm" {
		return 0, false
	}
	for _, p := range strings.Split(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || strings.ToLower(k) != "rate" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// SamplesDuration returns the playback length of n mono samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// DurationSamples returns the number of samples spanning d at rate, rounded
// to the nearest sample. It inverts [SamplesDuration], which truncates to
// whole nanoseconds.
func DurationSamples(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int((int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second))
}
