package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderInstructions(t *testing.T) {
	got, err := RenderInstructions("before {PLACEHOLDER} after {PLACEHOLDER}", Fields{Name: "Ana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `before {"name":"Ana","age":"","type":"","subType":"","status":"","freeText":""} after {PLACEHOLDER}`
	if got != want {
		t.Errorf("Expected only the first placeholder replaced\n got: %s\nwant: %s", got, want)
	}
}

func TestRenderInstructionsWithoutPlaceholder(t *testing.T) {
	got, err := RenderInstructions("no fields here", Fields{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "no fields here" {
		t.Errorf("Expected template unchanged, got %q", got)
	}
}

func TestInstructionStateDefaults(t *testing.T) {
	s := NewInstructionState("")
	rendered, err := s.Render()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rendered, Placeholder) {
		t.Errorf("Expected placeholder substituted in default instructions")
	}
	if !strings.Contains(rendered, `"freeText":""`) {
		t.Errorf("Expected empty field snapshot in rendered instructions")
	}
	if _, ok := s.Snapshot().(Fields); !ok {
		t.Errorf("Expected initial snapshot to be Fields, got %T", s.Snapshot())
	}
}

func TestInstructionStateSetTranscript(t *testing.T) {
	s := NewInstructionState("{PLACEHOLDER}")

	s.SetTranscript("Where does it hurt?")
	rendered, _ := s.Render()
	if rendered != `"Where does it hurt?"` {
		t.Errorf("Expected plain transcript as JSON string, got %s", rendered)
	}

	s.SetTranscript(` {"name":"Ana","age":"34"}`)
	rendered, _ = s.Render()
	var obj map[string]string
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
		t.Fatalf("Expected structured snapshot, got %s", rendered)
	}
	if obj["name"] != "Ana" || obj["age"] != "34" {
		t.Errorf("Expected fields kept, got %v", obj)
	}

	s.SetTranscript("{not json")
	if got, ok := s.Snapshot().(string); !ok || got != "{not json" {
		t.Errorf("Expected malformed object kept as text, got %#v", s.Snapshot())
	}
}
