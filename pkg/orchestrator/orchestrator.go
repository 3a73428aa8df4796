package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/capture"
	"github.com/lokutor-ai/lokutor-relay/pkg/observe"
)

// Orchestrator owns the realtime session, the capture controller and the
// broadcast channel for the lifetime of one relay. The turn coordinator and
// the event relay hold non-owning references to them.
type Orchestrator struct {
	session     RealtimeSession
	capture     Capture
	broadcaster Broadcaster
	config      Config
	logger      Logger
	metrics     *observe.Metrics

	instructions *InstructionState
	relay        *Relay
	turns        *TurnCoordinator

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu        sync.Mutex
	mounted   bool
	connected bool
	closed    bool
}

type Option func(*Orchestrator)

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator, subscribes its relay to the session and
// queues the initial session configuration (instructions with the empty
// field snapshot and input audio transcription).
func New(session RealtimeSession, capture Capture, broadcaster Broadcaster, config Config, opts ...Option) (*Orchestrator, error) {
	if session == nil || capture == nil || broadcaster == nil {
		return nil, ErrNilProvider
	}
	if config.Instructions == "" {
		config.Instructions = DefaultInstructions
	}
	if config.Language == "" {
		config.Language = LanguageEn
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		session:     session,
		capture:     capture,
		broadcaster: broadcaster,
		config:      config,
		logger:      &NoOpLogger{},
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.instructions = NewInstructionState(config.Instructions)
	o.relay = NewRelay(ctx, broadcaster, o.instructions, config.Language, config.MaxEventLog, o.logger, o.metrics)
	o.turns = NewTurnCoordinator(ctx, capture, session, o.instructions, o.logger, o.metrics)
	o.relay.Subscribe(session)
	o.unsubscribe = session.Subscribe(SessionCallbacks{OnDisconnected: o.handleSessionLost})

	initial, err := o.instructions.Render()
	if err != nil {
		o.release()
		return nil, err
	}
	update := SessionUpdate{Instructions: initial}
	if config.TranscriptionModel != "" {
		update.InputAudioTranscription = &InputAudioTranscription{Model: config.TranscriptionModel}
	}
	if err := session.UpdateSession(ctx, update); err != nil {
		o.release()
		return nil, fmt.Errorf("initial session update: %w", err)
	}

	return o, nil
}

func (o *Orchestrator) release() {
	o.relay.Unsubscribe()
	o.unsubscribe()
	o.cancel()
}

// Mount opens the broadcast channel. A failure is logged and returned; the
// orchestrator stays usable and mirror emissions fail until a later Mount.
func (o *Orchestrator) Mount(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.mounted {
		return nil
	}
	if err := o.broadcaster.Connect(ctx, o.config.BroadcastURL); err != nil {
		o.logger.Error("broadcast connect failed", "url", o.config.BroadcastURL, "error", err)
		return fmt.Errorf("mount broadcast channel: %w", err)
	}
	o.mounted = true
	o.logger.Info("broadcast channel connected", "url", o.config.BroadcastURL)
	return nil
}

// Connect acquires the microphone, connects the session and applies the
// voice and the active turn mode. Any partial setup is unwound on failure.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.connected {
		return nil
	}

	if err := o.capture.Begin(ctx); err != nil {
		o.logger.Error("error acquiring input device", "error", err)
		return err
	}

	if err := o.session.Connect(ctx, o.config.Model); err != nil {
		o.logger.Error("error connecting to conversation", "model", o.config.Model, "error", err)
		o.unwind()
		return fmt.Errorf("%w: %v", ErrSessionConnect, err)
	}

	if err := o.session.UpdateSession(ctx, SessionUpdate{Voice: o.config.Voice}); err != nil {
		o.logger.Error("error configuring session voice", "voice", o.config.Voice, "error", err)
		o.unwind()
		return fmt.Errorf("%w: %v", ErrSessionConnect, err)
	}

	if err := o.turns.SetMode(ctx, o.turns.Mode()); err != nil {
		o.logger.Error("error applying turn mode", "error", err)
		o.unwind()
		return fmt.Errorf("%w: %v", ErrSessionConnect, err)
	}

	o.connected = true
	o.logger.Info("conversation connected", "model", o.config.Model, "voice", o.config.Voice, "mode", o.turns.Mode())
	return nil
}

// unwind releases whatever Connect acquired. Errors are logged only.
func (o *Orchestrator) unwind() {
	if err := o.session.Disconnect(); err != nil {
		o.logger.Warn("session disconnect during unwind failed", "error", err)
	}
	if err := o.capture.End(); err != nil {
		o.logger.Warn("capture end during unwind failed", "error", err)
	}
}

// handleSessionLost runs on the session's receive goroutine when the remote
// side closes the connection. The microphone is released and turn taking
// falls back to manual so the next Connect starts from a clean state.
func (o *Orchestrator) handleSessionLost(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected {
		return
	}
	o.connected = false
	o.logger.Error("conversation lost", "error", err)
	o.metrics.RecordSessionError(o.ctx, "connection_lost")

	if err := o.capture.End(); err != nil {
		o.logger.Warn("capture end after connection loss failed", "error", err)
	}
	o.turns.Reset()
}

// Disconnect closes the session and releases the microphone. It is safe to
// call in any state.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disconnectLocked()
}

func (o *Orchestrator) disconnectLocked() error {
	wasConnected := o.connected
	o.connected = false

	var errs []error
	if err := o.session.Disconnect(); err != nil {
		o.logger.Error("error disconnecting session", "error", err)
		errs = append(errs, err)
	}
	if err := o.capture.End(); err != nil {
		o.logger.Error("error ending capture", "error", err)
		errs = append(errs, err)
	}
	if wasConnected {
		o.logger.Info("conversation disconnected")
	}
	return errors.Join(errs...)
}

// Close tears the orchestrator down: disconnect, unsubscribe the relay, reset
// the session and close the broadcast channel. Idempotent.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	errs := []error{o.disconnectLocked()}
	o.relay.Unsubscribe()
	o.unsubscribe()
	if err := o.session.Reset(); err != nil {
		o.logger.Warn("session reset failed", "error", err)
		errs = append(errs, err)
	}
	if err := o.broadcaster.Close(); err != nil {
		o.logger.Warn("broadcast close failed", "error", err)
		errs = append(errs, err)
	}
	o.mounted = false
	o.cancel()
	return errors.Join(errs...)
}

// SetMode switches the turn-taking mode of a connected conversation.
func (o *Orchestrator) SetMode(ctx context.Context, mode TurnMode) error {
	if err := o.requireConnected(); err != nil {
		return err
	}
	return o.turns.SetMode(ctx, mode)
}

// StartRecording starts a push-to-talk turn.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	if err := o.requireConnected(); err != nil {
		return err
	}
	return o.turns.StartRecording(ctx)
}

// StopRecording ends a push-to-talk turn and requests the translation.
func (o *Orchestrator) StopRecording(ctx context.Context) error {
	if err := o.requireConnected(); err != nil {
		return err
	}
	return o.turns.StopRecording(ctx)
}

func (o *Orchestrator) requireConnected() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if !o.connected {
		return ErrNotConnected
	}
	return nil
}

// Connected reports whether the conversation is connected.
func (o *Orchestrator) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

// Mode returns the active turn mode.
func (o *Orchestrator) Mode() TurnMode {
	return o.turns.Mode()
}

// CaptureStatus returns the microphone status.
func (o *Orchestrator) CaptureStatus() capture.Status {
	return o.capture.Status()
}

// Events returns the aggregated realtime event log.
func (o *Orchestrator) Events() []RealtimeEvent {
	return o.relay.Events()
}

// Transcripts returns finalized transcripts, most recent first.
func (o *Orchestrator) Transcripts() []Transcript {
	return o.relay.Transcripts()
}

// OnTranscript registers a listener for finalized transcripts.
func (o *Orchestrator) OnTranscript(fn func(Transcript)) {
	o.relay.OnTranscript(fn)
}

// GetConfig returns the configuration
func (o *Orchestrator) GetConfig() Config {
	return o.config
}
