package orchestrator

import (
	"context"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/capture"
)

type MockSession struct {
	mu          sync.Mutex
	connectErr  error
	updateErr   error
	appendErr   error
	connected   bool
	model       string
	updates     []SessionUpdate
	appended    [][]int16
	responses   int
	disconnects int
	resets      int
	// callbacks is the first subscription, which is the relay's.
	callbacks    *SessionCallbacks
	subs         []*SessionCallbacks
	unsubscribed bool
}

func (m *MockSession) Connect(ctx context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	m.model = model
	return nil
}

func (m *MockSession) UpdateSession(ctx context.Context, cfg SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, cfg)
	return nil
}

func (m *MockSession) AppendInputAudio(ctx context.Context, samples []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, samples)
	return nil
}

func (m *MockSession) CreateResponse(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses++
	return nil
}

func (m *MockSession) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
	return nil
}

func (m *MockSession) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.resets++
	return nil
}

func (m *MockSession) Subscribe(cb SessionCallbacks) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &cb
	if m.callbacks == nil {
		m.callbacks = sub
	}
	m.subs = append(m.subs, sub)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.callbacks == sub {
			m.callbacks = nil
		}
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		m.unsubscribed = true
	}
}

// drop simulates the remote side closing the connection.
func (m *MockSession) drop(err error) {
	m.mu.Lock()
	m.connected = false
	subs := append([]*SessionCallbacks(nil), m.subs...)
	m.mu.Unlock()
	for _, cb := range subs {
		if cb.OnDisconnected != nil {
			cb.OnDisconnected(err)
		}
	}
}

func (m *MockSession) lastUpdate() SessionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return SessionUpdate{}
	}
	return m.updates[len(m.updates)-1]
}

func (m *MockSession) appendedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended)
}

func (m *MockSession) fireEvent(ev RealtimeEvent) {
	m.mu.Lock()
	cb := m.callbacks
	m.mu.Unlock()
	if cb != nil && cb.OnRealtimeEvent != nil {
		cb.OnRealtimeEvent(ev)
	}
}

type emission struct {
	channel string
	payload []byte
}

type MockBroadcaster struct {
	mu         sync.Mutex
	connectErr error
	emitErr    error
	url        string
	emits      []emission
	closes     int
}

func (m *MockBroadcaster) Connect(ctx context.Context, endpointURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.url = endpointURL
	return nil
}

func (m *MockBroadcaster) Emit(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.emits = append(m.emits, emission{channel: channel, payload: payload})
	return nil
}

func (m *MockBroadcaster) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// MockDevice is a capture.Device fed by Push.
type MockDevice struct {
	mu      sync.Mutex
	openErr error
	onData  func([]byte)
	closed  int
}

func (d *MockDevice) Open(sampleRate int, onData func([]byte)) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return 0, d.openErr
	}
	d.onData = onData
	return sampleRate, nil
}

func (d *MockDevice) Start() error { return nil }
func (d *MockDevice) Stop() error  { return nil }

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onData = nil
	d.closed++
	return nil
}

func (d *MockDevice) Push(samples ...int16) {
	d.mu.Lock()
	onData := d.onData
	d.mu.Unlock()
	if onData != nil {
		onData(audio.PCM16ToBytes(samples))
	}
}

// newTestCapture returns a capture controller cutting 2-sample frames.
func newTestCapture(dev *MockDevice) *capture.Controller {
	return capture.NewController(dev, audio.NewFrameBuffer(2))
}
