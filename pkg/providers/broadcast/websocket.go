package broadcast

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
)

var _ orchestrator.Broadcaster = (*WebSocketBroadcaster)(nil)

// Envelope is the wire format of one emission: a named event carrying the
// base64 encoded payload.
type Envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// WebSocketBroadcaster emits named events over a single websocket.
type WebSocketBroadcaster struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketBroadcaster() *WebSocketBroadcaster {
	return &WebSocketBroadcaster{}
}

func (b *WebSocketBroadcaster) Connect(ctx context.Context, endpointURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, endpointURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to broadcast endpoint: %w", err)
	}
	// nothing is expected back; CloseRead keeps control frames flowing
	conn.CloseRead(context.Background())
	b.conn = conn
	return nil
}

func (b *WebSocketBroadcaster) Emit(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return orchestrator.ErrNotConnected
	}
	env := Envelope{Event: channel, Data: base64.StdEncoding.EncodeToString(payload)}
	if err := wsjson.Write(ctx, b.conn, env); err != nil {
		b.conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		b.conn = nil
		return fmt.Errorf("failed to emit %s: %w", channel, err)
	}
	return nil
}

func (b *WebSocketBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		err := b.conn.Close(websocket.StatusNormalClosure, "")
		b.conn = nil
		return err
	}
	return nil
}
