package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lokutor-ai/lokutor-relay/pkg/observe"
)

const transcriptDoneEvent = "response.audio_transcript.done"

// Relay consumes the session's output: it keeps the aggregated event log and
// the transcript log, and mirrors response audio onto the broadcast channel.
type Relay struct {
	ctx          context.Context
	broadcaster  Broadcaster
	instructions *InstructionState
	language     Language
	maxEvents    int
	logger       Logger
	metrics      *observe.Metrics

	mu          sync.Mutex
	events      []RealtimeEvent
	transcripts []Transcript
	listeners   []func(Transcript)
	unsubscribe func()
	subscribed  bool
}

// NewRelay creates a relay. ctx bounds broadcast emissions.
func NewRelay(ctx context.Context, broadcaster Broadcaster, instructions *InstructionState, language Language, maxEvents int, logger Logger, metrics *observe.Metrics) *Relay {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if instructions == nil {
		instructions = NewInstructionState("")
	}
	return &Relay{
		ctx:          ctx,
		broadcaster:  broadcaster,
		instructions: instructions,
		language:     language,
		maxEvents:    maxEvents,
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscribe attaches the relay to session. A relay subscribes once for its
// lifetime; later calls are no-ops.
func (r *Relay) Subscribe(session RealtimeSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribed {
		return
	}
	r.subscribed = true
	r.unsubscribe = session.Subscribe(SessionCallbacks{
		OnRealtimeEvent:       r.HandleEvent,
		OnError:               r.HandleError,
		OnConversationUpdated: r.HandleConversationUpdated,
	})
}

// Unsubscribe detaches the relay from its session.
func (r *Relay) Unsubscribe() {
	r.mu.Lock()
	cancel := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OnTranscript registers a listener for finalized transcripts.
func (r *Relay) OnTranscript(fn func(Transcript)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// HandleEvent logs ev, folding it into the last entry when the type repeats,
// and extracts finalized transcripts.
func (r *Relay) HandleEvent(ev RealtimeEvent) {
	r.metrics.RecordEvent(r.ctx, string(ev.Source))

	r.mu.Lock()
	if n := len(r.events); n > 0 && r.events[n-1].Type == ev.Type {
		r.events[n-1].Count++
	} else {
		ev.Count = 1
		r.events = append(r.events, ev)
		if r.maxEvents > 0 && len(r.events) > r.maxEvents {
			r.events = append(r.events[:0], r.events[len(r.events)-r.maxEvents:]...)
		}
	}
	r.mu.Unlock()

	if ev.Type == transcriptDoneEvent {
		r.handleTranscriptDone(ev)
	}
}

func (r *Relay) handleTranscriptDone(ev RealtimeEvent) {
	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		r.logger.Warn("malformed transcript event", "type", ev.Type, "error", err)
		r.metrics.RecordSessionError(r.ctx, "malformed_event")
		return
	}

	t := Transcript{Text: payload.Transcript, Language: r.language}
	r.instructions.SetTranscript(t.Text)

	r.mu.Lock()
	r.transcripts = append([]Transcript{t}, r.transcripts...)
	listeners := make([]func(Transcript), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	r.logger.Info("transcript finalized", "language", t.Language, "length", len(t.Text))
	r.metrics.RecordTranscript(r.ctx, string(t.Language))
	for _, fn := range listeners {
		fn(t)
	}
}

// HandleError reports a session error. The subscription stays active.
func (r *Relay) HandleError(err error) {
	r.logger.Error("realtime session error", "language", r.language, "error", err)
	r.metrics.RecordSessionError(r.ctx, "error_event")
}

// HandleConversationUpdated mirrors every non-empty response audio delta.
func (r *Relay) HandleConversationUpdated(u ConversationUpdate) {
	if len(u.Delta.Audio) == 0 {
		return
	}

	channel := MirrorChannel(r.language)
	err := r.broadcaster.Emit(r.ctx, channel, u.Delta.Audio)
	r.metrics.RecordMirror(r.ctx, channel, len(u.Delta.Audio), err)
	if err != nil {
		r.logger.Error("mirror audio emit failed", "channel", channel, "bytes", len(u.Delta.Audio), "error", err)
		return
	}
	r.logger.Debug("mirrored audio delta", "channel", channel, "bytes", len(u.Delta.Audio))
}

// Events returns a copy of the aggregated event log, oldest first.
func (r *Relay) Events() []RealtimeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RealtimeEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Transcripts returns a copy of the transcript log, most recent first.
func (r *Relay) Transcripts() []Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transcript, len(r.transcripts))
	copy(out, r.transcripts)
	return out
}
