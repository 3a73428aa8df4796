package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/capture"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// RealtimeSession is the remote translation session. The orchestrator owns it
// for its whole lifetime and is the only caller.
type RealtimeSession interface {
	Connect(ctx context.Context, model string) error
	// UpdateSession merges cfg into the session configuration. Before Connect
	// the update is queued and sent with the initial session.update.
	UpdateSession(ctx context.Context, cfg SessionUpdate) error
	AppendInputAudio(ctx context.Context, samples []int16) error
	CreateResponse(ctx context.Context) error
	Disconnect() error
	// Reset disconnects and discards queued configuration and subscribers.
	Reset() error
	// Subscribe registers callbacks and returns a function that removes them.
	Subscribe(cb SessionCallbacks) (cancel func())
}

// SessionCallbacks receive session output. Server events are delivered from a
// single goroutine in stream order.
type SessionCallbacks struct {
	OnRealtimeEvent       func(RealtimeEvent)
	OnError               func(error)
	OnConversationUpdated func(ConversationUpdate)
	// OnDisconnected runs once when the remote side drops a live connection.
	// It is not called for a local Disconnect or Reset.
	OnDisconnected func(error)
}

// Broadcaster is the secondary channel translated audio is mirrored onto.
type Broadcaster interface {
	Connect(ctx context.Context, endpointURL string) error
	Emit(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Capture is the microphone lifecycle the orchestrator drives.
type Capture interface {
	Begin(ctx context.Context) error
	Record(onFrame func(audio.Frame)) error
	Pause() error
	End() error
	Status() capture.Status
}

type EventSource string

const (
	SourceClient EventSource = "client"
	SourceServer EventSource = "server"
)

// RealtimeEvent is one protocol message sent or received on the session.
// Count is the number of consecutive events of the same Type it stands for
// in the event log.
type RealtimeEvent struct {
	Time    time.Time       `json:"time"`
	Source  EventSource     `json:"source"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"event"`
	Count   int             `json:"count,omitempty"`
}

// Transcript is a finalized response transcript.
type Transcript struct {
	Text     string   `json:"transcript"`
	Language Language `json:"language"`
}

// ConversationDelta is the incremental content of a conversation item.
type ConversationDelta struct {
	Audio      []byte
	Transcript string
	Text       string
}

// ConversationUpdate is emitted for every streamed response delta.
type ConversationUpdate struct {
	ItemID string
	Delta  ConversationDelta
}

// TurnDetection configures server-side turn detection. A zero Type disables
// it and is sent as null.
type TurnDetection struct {
	Type string `json:"type"`
}

// ServerVAD enables server voice activity detection.
func ServerVAD() *TurnDetection { return &TurnDetection{Type: "server_vad"} }

// NoTurnDetection disables turn detection.
func NoTurnDetection() *TurnDetection { return &TurnDetection{} }

// Enabled reports whether turn detection is on.
func (t *TurnDetection) Enabled() bool { return t != nil && t.Type != "" }

type InputAudioTranscription struct {
	Model string `json:"model"`
}

// SessionUpdate is a partial session configuration. Zero fields are left
// unchanged; TurnDetection nil means unchanged, NoTurnDetection() clears it.
type SessionUpdate struct {
	Voice                   string
	Instructions            string
	InputAudioTranscription *InputAudioTranscription
	TurnDetection           *TurnDetection
}

type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

type Config struct {
	Model              string
	Voice              string
	TranscriptionModel string
	// Language tags transcripts and names the mirror channel.
	Language     Language
	BroadcastURL string
	// Instructions is the prompt template; it must contain Placeholder to
	// receive the collected fields.
	Instructions string
	// MaxEventLog bounds the aggregated event log. Oldest entries are dropped.
	MaxEventLog int
}

func DefaultConfig() Config {
	return Config{
		Model:              "gpt-4o-realtime-preview-2024-12-17",
		Voice:              "coral",
		TranscriptionModel: "whisper-1",
		Language:           LanguageEn,
		BroadcastURL:       "ws://localhost:3001",
		Instructions:       DefaultInstructions,
		MaxEventLog:        500,
	}
}

// MirrorChannel returns the broadcast channel name for a language.
func MirrorChannel(lang Language) string {
	return "mirrorAudio:" + string(lang)
}
