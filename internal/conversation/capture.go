package conversation

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/audio"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// capture turns microphone frames into realtime input blobs. Frames that
// arrive before the session is open are discarded; after that, each frame is
// encoded and offered to the outbound queue without blocking.
type capture struct {
	stream  audio.InputStream
	mime    string
	log     *slog.Logger
	metrics *observe.Metrics

	sink atomic.Pointer[outbound]
}

func newCapture(stream audio.InputStream, rate int, log *slog.Logger, m *observe.Metrics) *capture {
	return &capture{
		stream:  stream,
		mime:    audio.PCMMIMEType(rate),
		log:     log,
		metrics: m,
	}
}

// attach starts forwarding frames to o.
func (c *capture) attach(o *outbound) { c.sink.Store(o) }

// run consumes the stream until it ends.
func (c *capture) run(ctx context.Context) {
	for frame := range c.stream.Frames() {
		o := c.sink.Load()
		if o == nil {
			c.metrics.RecordFrameDropped(ctx, "not_open")
			continue
		}
		blob := live.Blob{MIMEType: c.mime, Data: audio.EncodeFloat32(frame)}
		if !o.TryEnqueue(blob) {
			c.metrics.RecordFrameDropped(ctx, "backpressure")
		}
	}
	if err := c.stream.Err(); err != nil {
		c.log.Warn("conversation: microphone stream ended", "err", err)
	}
}
