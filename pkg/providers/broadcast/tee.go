package broadcast

import (
	"context"
	"io"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
)

// Tee forwards to a Broadcaster and copies every payload emitted on one
// channel to w. A write failure is returned only when the forward succeeded.
type Tee struct {
	orchestrator.Broadcaster
	channel string

	mu sync.Mutex
	w  io.Writer
}

func NewTee(b orchestrator.Broadcaster, channel string, w io.Writer) *Tee {
	return &Tee{Broadcaster: b, channel: channel, w: w}
}

func (t *Tee) Emit(ctx context.Context, channel string, payload []byte) error {
	err := t.Broadcaster.Emit(ctx, channel, payload)
	if channel != t.channel {
		return err
	}
	t.mu.Lock()
	_, werr := t.w.Write(payload)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return werr
}
