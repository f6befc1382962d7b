package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// outbound forwards encoded frames to the remote connection from a single
// goroutine, in enqueue order. Producers never block: a full queue drops the
// frame.
type outbound struct {
	conn    live.Conn
	queue   chan live.Blob
	log     *slog.Logger
	metrics *observe.Metrics

	mu     sync.RWMutex
	closed bool
}

func newOutbound(conn live.Conn, size int, log *slog.Logger, m *observe.Metrics) *outbound {
	return &outbound{
		conn:    conn,
		queue:   make(chan live.Blob, size),
		log:     log,
		metrics: m,
	}
}

// TryEnqueue queues b for sending. It reports false, dropping b, when the
// queue is full or closed.
func (o *outbound) TryEnqueue(b live.Blob) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}
	select {
	case o.queue <- b:
		return true
	default:
		return false
	}
}

// run sends queued frames until the queue is closed. Send failures are
// counted and otherwise ignored; a broken connection surfaces through its
// event stream instead.
func (o *outbound) run(ctx context.Context) {
	for b := range o.queue {
		if ctx.Err() != nil {
			continue
		}
		if err := o.conn.SendRealtimeInput(ctx, b); err != nil {
			o.log.Debug("conversation: frame send failed", "err", err)
			o.metrics.RecordFrameDropped(ctx, "send_error")
			continue
		}
		o.metrics.FramesSent.Add(ctx, 1)
	}
}

// close stops accepting frames. The sender drains what is queued (skipping
// sends once ctx is cancelled) and exits.
func (o *outbound) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
}
