package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
)

var _ orchestrator.RealtimeSession = (*OpenAIRealtime)(nil)

const defaultBaseURL = "wss://api.openai.com/v1/realtime"

var (
	ErrAlreadyConnected = errors.New("realtime session already connected")
	ErrConnectionLost   = errors.New("realtime connection lost")
)

type Option func(*OpenAIRealtime)

// WithBaseURL overrides the realtime endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *OpenAIRealtime) { c.baseURL = u }
}

func WithLogger(logger orchestrator.Logger) Option {
	return func(c *OpenAIRealtime) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// OpenAIRealtime is a client for the OpenAI Realtime API. Session
// configuration is merged across UpdateSession calls and sent in full on
// every change; updates made before Connect are sent with the first
// session.update.
type OpenAIRealtime struct {
	apiKey  string
	baseURL string
	logger  orchestrator.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	config   sessionConfig
	appended bool
	subs     map[int]orchestrator.SessionCallbacks
	nextSub  int

	// writeMu keeps client events in wire order.
	writeMu sync.Mutex
}

func NewOpenAIRealtime(apiKey string, opts ...Option) *OpenAIRealtime {
	c := &OpenAIRealtime{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		logger:  &orchestrator.NoOpLogger{},
		subs:    make(map[int]orchestrator.SessionCallbacks),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sessionConfig struct {
	voice         string
	instructions  string
	transcription *orchestrator.InputAudioTranscription
	turnDetection *orchestrator.TurnDetection
}

func (s *sessionConfig) merge(u orchestrator.SessionUpdate) {
	if u.Voice != "" {
		s.voice = u.Voice
	}
	if u.Instructions != "" {
		s.instructions = u.Instructions
	}
	if u.InputAudioTranscription != nil {
		t := *u.InputAudioTranscription
		s.transcription = &t
	}
	if u.TurnDetection != nil {
		td := *u.TurnDetection
		s.turnDetection = &td
	}
}

type sessionParams struct {
	Voice                   string                                `json:"voice,omitempty"`
	Instructions            string                                `json:"instructions,omitempty"`
	InputAudioFormat        string                                `json:"input_audio_format"`
	OutputAudioFormat       string                                `json:"output_audio_format"`
	InputAudioTranscription *orchestrator.InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	// TurnDetection is omitted until set and sent as null when disabled.
	TurnDetection json.RawMessage `json:"turn_detection,omitempty"`
}

func (s sessionConfig) params() sessionParams {
	p := sessionParams{
		Voice:                   s.voice,
		Instructions:            s.instructions,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: s.transcription,
	}
	switch {
	case s.turnDetection == nil:
	case s.turnDetection.Enabled():
		p.TurnDetection, _ = json.Marshal(s.turnDetection)
	default:
		p.TurnDetection = json.RawMessage("null")
	}
	return p
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type   string             `json:"type"`
	ItemID string             `json:"item_id,omitempty"`
	Delta  string             `json:"delta,omitempty"`
	Error  *serverErrorDetail `json:"error,omitempty"`
}

// Connect dials the realtime endpoint for model and sends the merged session
// configuration.
func (c *OpenAIRealtime) Connect(ctx context.Context, model string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to connect to realtime api: %w", err)
	}
	conn.SetReadLimit(10 * 1024 * 1024)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.appended = false
	params := c.config.params()
	c.mu.Unlock()

	if err := c.send(ctx, conn, sessionUpdateMessage{Type: "session.update", Session: params}); err != nil {
		close(done)
		c.Disconnect()
		return fmt.Errorf("failed to send session update: %w", err)
	}

	go c.receiveLoop(loopCtx, conn, done)
	c.logger.Info("realtime session connected", "model", model)
	return nil
}

// UpdateSession merges cfg into the session configuration and sends it when
// connected.
func (c *OpenAIRealtime) UpdateSession(ctx context.Context, cfg orchestrator.SessionUpdate) error {
	c.mu.Lock()
	c.config.merge(cfg)
	params := c.config.params()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.send(ctx, conn, sessionUpdateMessage{Type: "session.update", Session: params})
}

// AppendInputAudio streams PCM16 samples into the server input buffer.
func (c *OpenAIRealtime) AppendInputAudio(ctx context.Context, samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		c.appended = true
	}
	c.mu.Unlock()

	if conn == nil {
		return orchestrator.ErrNotConnected
	}
	return c.send(ctx, conn, appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(audio.PCM16ToBytes(samples)),
	})
}

// CreateResponse asks the model to respond. Without server turn detection,
// pending input audio is committed first.
func (c *OpenAIRealtime) CreateResponse(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	commit := c.appended && !c.config.turnDetection.Enabled()
	c.appended = false
	c.mu.Unlock()

	if conn == nil {
		return orchestrator.ErrNotConnected
	}
	if commit {
		if err := c.send(ctx, conn, map[string]string{"type": "input_audio_buffer.commit"}); err != nil {
			return err
		}
	}
	return c.send(ctx, conn, map[string]string{"type": "response.create"})
}

// Disconnect closes the socket and waits for the receive loop to exit. No
// callback runs after it returns. Safe to call when not connected.
func (c *OpenAIRealtime) Disconnect() error {
	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn = nil
	c.cancel = nil
	c.appended = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.logger.Debug("realtime close", "error", err)
	}
	<-done
	c.logger.Info("realtime session disconnected")
	return nil
}

// Reset disconnects and drops the merged configuration and all subscribers.
func (c *OpenAIRealtime) Reset() error {
	err := c.Disconnect()
	c.mu.Lock()
	c.config = sessionConfig{}
	c.subs = make(map[int]orchestrator.SessionCallbacks)
	c.mu.Unlock()
	return err
}

func (c *OpenAIRealtime) Subscribe(cb orchestrator.SessionCallbacks) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *OpenAIRealtime) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *OpenAIRealtime) send(ctx context.Context, conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal client event: %w", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", head.Type, err)
	}
	c.dispatchEvent(orchestrator.RealtimeEvent{
		Time:    time.Now(),
		Source:  orchestrator.SourceClient,
		Type:    head.Type,
		Payload: data,
	})
	return nil
}

func (c *OpenAIRealtime) receiveLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("realtime read failed", "error", err)
			lost := fmt.Errorf("%w: %v", ErrConnectionLost, err)
			if !c.dropConn(conn) {
				return
			}
			c.dispatchError(lost)
			c.dispatchDisconnected(lost)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Warn("malformed realtime event", "error", err)
			c.dispatchError(fmt.Errorf("malformed realtime event: %w", err))
			continue
		}

		c.dispatchEvent(orchestrator.RealtimeEvent{
			Time:    time.Now(),
			Source:  orchestrator.SourceServer,
			Type:    evt.Type,
			Payload: json.RawMessage(data),
		})
		c.handleServerEvent(&evt)
	}
}

func (c *OpenAIRealtime) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			c.dispatchError(fmt.Errorf("invalid audio delta: %w", err))
			return
		}
		c.dispatchUpdate(orchestrator.ConversationUpdate{ItemID: evt.ItemID, Delta: orchestrator.ConversationDelta{Audio: pcm}})

	case "response.audio_transcript.delta":
		c.dispatchUpdate(orchestrator.ConversationUpdate{ItemID: evt.ItemID, Delta: orchestrator.ConversationDelta{Transcript: evt.Delta}})

	case "response.text.delta":
		c.dispatchUpdate(orchestrator.ConversationUpdate{ItemID: evt.ItemID, Delta: orchestrator.ConversationDelta{Text: evt.Delta}})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		c.dispatchError(fmt.Errorf("realtime api error: %s", msg))
	}
}

// dropConn forgets conn after the server closed it, so the next Connect can
// dial again. It reports false when conn was already replaced or released.
// Subscribers are notified only after this, so a Disconnect they trigger does
// not wait on the receive loop that is calling them.
func (c *OpenAIRealtime) dropConn(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	c.conn = nil
	c.appended = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

func (c *OpenAIRealtime) subscribers() []orchestrator.SessionCallbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]orchestrator.SessionCallbacks, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

func (c *OpenAIRealtime) dispatchEvent(ev orchestrator.RealtimeEvent) {
	for _, cb := range c.subscribers() {
		if cb.OnRealtimeEvent != nil {
			cb.OnRealtimeEvent(ev)
		}
	}
}

func (c *OpenAIRealtime) dispatchError(err error) {
	for _, cb := range c.subscribers() {
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}
}

func (c *OpenAIRealtime) dispatchDisconnected(err error) {
	for _, cb := range c.subscribers() {
		if cb.OnDisconnected != nil {
			cb.OnDisconnected(err)
		}
	}
}

func (c *OpenAIRealtime) dispatchUpdate(u orchestrator.ConversationUpdate) {
	for _, cb := range c.subscribers() {
		if cb.OnConversationUpdated != nil {
			cb.OnConversationUpdated(u)
		}
	}
}
