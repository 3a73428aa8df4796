package orchestrator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Placeholder is replaced with the JSON snapshot of collected fields.
const Placeholder = "{PLACEHOLDER}"

//go:embed prompt.txt
var DefaultInstructions string

// Fields is the structured snapshot sent with the first instructions.
type Fields struct {
	Name     string `json:"name"`
	Age      string `json:"age"`
	Type     string `json:"type"`
	SubType  string `json:"subType"`
	Status   string `json:"status"`
	FreeText string `json:"freeText"`
}

// RenderInstructions substitutes the first Placeholder in template with the
// JSON encoding of snapshot.
func RenderInstructions(template string, snapshot any) (string, error) {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return strings.Replace(template, Placeholder, string(b), 1), nil
}

// InstructionState holds the template and the latest snapshot. The relay
// updates the snapshot from finalized transcripts; the turn coordinator
// renders it when a manual turn ends.
type InstructionState struct {
	mu       sync.RWMutex
	template string
	snapshot any
}

func NewInstructionState(template string) *InstructionState {
	if template == "" {
		template = DefaultInstructions
	}
	return &InstructionState{template: template, snapshot: Fields{}}
}

// Render returns the template with the current snapshot substituted.
func (s *InstructionState) Render() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RenderInstructions(s.template, s.snapshot)
}

// Snapshot returns the current snapshot.
func (s *InstructionState) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetTranscript replaces the snapshot with a finalized transcript. A
// transcript that is a JSON object is kept structured so the rendered
// instructions carry the object itself rather than a quoted string of it.
// This deliberately departs from always quoting the transcript; anything
// that is not an object is still kept as text.
func (s *InstructionState) SetTranscript(text string) {
	var snapshot any = text
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			snapshot = obj
		}
	}

	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
}
