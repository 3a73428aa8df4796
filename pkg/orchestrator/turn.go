package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/capture"
	"github.com/lokutor-ai/lokutor-relay/pkg/observe"
)

type TurnMode string

const (
	// TurnManual is push-to-talk: the caller starts and stops recording and
	// each stop requests a response.
	TurnManual TurnMode = "manual"
	// TurnServerVAD streams the microphone continuously and lets the server
	// decide where turns end.
	TurnServerVAD TurnMode = "server_vad"
)

// ParseTurnMode accepts "manual", "none" and "server_vad".
func ParseTurnMode(s string) (TurnMode, error) {
	switch s {
	case "manual", "none", "":
		return TurnManual, nil
	case "server_vad", "vad":
		return TurnServerVAD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// TurnCoordinator wires capture output to the session according to the
// active turn mode. Exactly one mode is active; switching pauses capture
// before the new mode is set up.
type TurnCoordinator struct {
	ctx          context.Context
	capture      Capture
	session      RealtimeSession
	instructions *InstructionState
	logger       Logger
	metrics      *observe.Metrics

	mu   sync.Mutex
	mode TurnMode
}

// NewTurnCoordinator creates a coordinator in manual mode. ctx bounds the
// session calls made from the frame callback.
func NewTurnCoordinator(ctx context.Context, capture Capture, session RealtimeSession, instructions *InstructionState, logger Logger, metrics *observe.Metrics) *TurnCoordinator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if instructions == nil {
		instructions = NewInstructionState("")
	}
	return &TurnCoordinator{
		ctx:          ctx,
		capture:      capture,
		session:      session,
		instructions: instructions,
		logger:       logger,
		metrics:      metrics,
		mode:         TurnManual,
	}
}

// Mode returns the active turn mode.
func (t *TurnCoordinator) Mode() TurnMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// SetMode switches turn mode. Capture is paused first; manual mode then
// clears server turn detection, server_vad enables it and starts recording.
// If server_vad cannot be established the coordinator falls back to manual
// with capture paused.
func (t *TurnCoordinator) SetMode(ctx context.Context, mode TurnMode) error {
	if mode != TurnManual && mode != TurnServerVAD {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.pauseLocked(); err != nil {
		return err
	}

	if mode == TurnManual {
		t.mode = TurnManual
		if err := t.session.UpdateSession(ctx, SessionUpdate{TurnDetection: NoTurnDetection()}); err != nil {
			t.metrics.RecordSessionError(ctx, "update_session")
			return fmt.Errorf("disable turn detection: %w", err)
		}
		t.logger.Info("turn mode set", "mode", TurnManual)
		return nil
	}

	if err := t.session.UpdateSession(ctx, SessionUpdate{TurnDetection: ServerVAD()}); err != nil {
		t.mode = TurnManual
		t.metrics.RecordSessionError(ctx, "update_session")
		return fmt.Errorf("enable server vad: %w", err)
	}
	if err := t.capture.Record(t.forward); err != nil {
		t.mode = TurnManual
		if rerr := t.session.UpdateSession(ctx, SessionUpdate{TurnDetection: NoTurnDetection()}); rerr != nil {
			t.logger.Warn("failed to revert turn detection", "error", rerr)
		}
		return fmt.Errorf("start recording: %w", err)
	}
	t.mode = TurnServerVAD
	t.logger.Info("turn mode set", "mode", TurnServerVAD)
	return nil
}

// StartRecording begins a push-to-talk turn.
func (t *TurnCoordinator) StartRecording(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != TurnManual {
		return fmt.Errorf("%w: recording is automatic in %s mode", ErrInvalidMode, t.mode)
	}
	if err := t.capture.Record(t.forward); err != nil {
		return err
	}
	t.logger.Debug("push-to-talk started")
	return nil
}

// StopRecording ends a push-to-talk turn: capture is paused, the
// instructions are refreshed with the latest snapshot and a response is
// requested.
func (t *TurnCoordinator) StopRecording(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode != TurnManual {
		return fmt.Errorf("%w: turns end automatically in %s mode", ErrInvalidMode, t.mode)
	}
	if err := t.pauseLocked(); err != nil {
		return err
	}

	instructions, err := t.instructions.Render()
	if err != nil {
		return err
	}
	if err := t.session.UpdateSession(ctx, SessionUpdate{Instructions: instructions}); err != nil {
		t.metrics.RecordSessionError(ctx, "update_session")
		return fmt.Errorf("update instructions: %w", err)
	}
	if err := t.session.CreateResponse(ctx); err != nil {
		t.metrics.RecordSessionError(ctx, "create_response")
		return fmt.Errorf("create response: %w", err)
	}
	t.logger.Debug("push-to-talk finished, response requested")
	return nil
}

// Reset returns the coordinator to manual mode without touching the
// session or the capture. Used after the session connection was lost and
// capture has already been ended.
func (t *TurnCoordinator) Reset() {
	t.mu.Lock()
	t.mode = TurnManual
	t.mu.Unlock()
}

func (t *TurnCoordinator) pauseLocked() error {
	if t.capture.Status() != capture.StatusRecording {
		return nil
	}
	if err := t.capture.Pause(); err != nil {
		return fmt.Errorf("pause capture: %w", err)
	}
	return nil
}

// forward runs on the capture thread for every frame.
func (t *TurnCoordinator) forward(f audio.Frame) {
	if err := t.session.AppendInputAudio(t.ctx, f.Mono); err != nil {
		t.logger.Warn("append input audio failed", "samples", len(f.Mono), "error", err)
		t.metrics.RecordSessionError(t.ctx, "append_audio")
		return
	}
	t.metrics.RecordFrame(t.ctx, len(f.Mono)*2, f.Level())
}
