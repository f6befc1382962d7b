package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/kisanlive/pkg/audio"
)

// Scheduler plays inbound audio chunks back to back on an output device.
//
// Each chunk starts at max(next, now) on the device clock, where next is the
// end of the previously scheduled chunk, so chunks that arrive faster than
// real time abut without gaps or overlap. The scheduler tracks every voice
// that has not finished; when the last one ends naturally, onDrained runs.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	dev       audio.OutputDevice
	rate      int
	onDrained func()

	mu      sync.Mutex
	next    time.Duration
	seq     uint64
	playing map[uint64]audio.Voice
	closed  bool
}

// NewScheduler returns a Scheduler for mono PCM at rate on dev. onDrained may
// be nil. It is invoked without the scheduler's lock held.
func NewScheduler(dev audio.OutputDevice, rate int, onDrained func()) *Scheduler {
	return &Scheduler{
		dev:       dev,
		rate:      rate,
		onDrained: onDrained,
		playing:   make(map[uint64]audio.Voice),
	}
}

// Enqueue decodes a 16-bit PCM chunk and schedules it. It returns the start
// time used. Undecodable chunks are rejected with an error wrapping
// [ErrDecode] and leave the schedule untouched.
func (s *Scheduler) Enqueue(pcm []byte) (time.Duration, error) {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSchedulerClosed
	}
	start := max(s.next, s.dev.Now())
	v, err := s.dev.Schedule(samples, start)
	if err != nil {
		return 0, fmt.Errorf("conversation: schedule chunk: %w", err)
	}
	s.next = start + audio.SamplesDuration(len(samples), s.rate)

	s.seq++
	id := s.seq
	s.playing[id] = v
	go s.watch(id, v)
	return start, nil
}

// watch removes a voice once it ends and reports a drain if it was the last.
func (s *Scheduler) watch(id uint64, v audio.Voice) {
	<-v.Done()
	s.mu.Lock()
	if _, ok := s.playing[id]; !ok {
		// Removed by Reset.
		s.mu.Unlock()
		return
	}
	delete(s.playing, id)
	drained := len(s.playing) == 0
	s.mu.Unlock()

	if drained && s.onDrained != nil {
		s.onDrained()
	}
}

// Playing returns the number of voices scheduled and not yet finished.
func (s *Scheduler) Playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playing)
}

// Next returns the scheduling cursor: the end time of the last chunk.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reset stops every scheduled voice, forgets them, and rewinds the cursor to
// zero. Voices stopped here do not trigger onDrained.
func (s *Scheduler) Reset() {
	s.reset(false)
}

// Close resets the scheduler and rejects further chunks with
// [ErrSchedulerClosed].
func (s *Scheduler) Close() {
	s.reset(true)
}

func (s *Scheduler) reset(closing bool) {
	s.mu.Lock()
	if closing {
		s.closed = true
	}
	voices := s.playing
	s.playing = make(map[uint64]audio.Voice)
	s.next = 0
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}
