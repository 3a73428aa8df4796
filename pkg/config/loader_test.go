package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Realtime.Model != "gpt-4o-realtime-preview-2024-12-17" {
		t.Errorf("unexpected model %q", cfg.Realtime.Model)
	}
	if cfg.Audio.SampleRate != 24000 || cfg.Audio.FrameSize != 4096 {
		t.Errorf("unexpected audio defaults %+v", cfg.Audio)
	}
	if cfg.Broadcast.URL != "ws://localhost:3001" || cfg.Broadcast.Language != "en" {
		t.Errorf("unexpected broadcast defaults %+v", cfg.Broadcast)
	}
	if cfg.TurnMode != "manual" {
		t.Errorf("unexpected turn mode %q", cfg.TurnMode)
	}

	// only the API key is missing
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	cfg.APIKey = "sk-test"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFromReader(t *testing.T) {
	yaml := `
realtime:
  voice: sage
broadcast:
  url: wss://mirror.example.com/socket
  language: es
turn_mode: server_vad
log:
  level: debug
  format: json
`
	cfg := Default()
	if err := decode(strings.NewReader(yaml), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.APIKey = "k"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if cfg.Realtime.Voice != "sage" {
		t.Errorf("expected voice sage, got %q", cfg.Realtime.Voice)
	}
	if cfg.Realtime.Model != "gpt-4o-realtime-preview-2024-12-17" {
		t.Errorf("expected default model kept, got %q", cfg.Realtime.Model)
	}
	if cfg.Broadcast.Language != "es" || cfg.TurnMode != "server_vad" {
		t.Errorf("unexpected overrides %+v %q", cfg.Broadcast, cfg.TurnMode)
	}

	oc, err := cfg.Orchestrator()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oc.Language != orchestrator.LanguageEs || oc.Instructions != orchestrator.DefaultInstructions {
		t.Errorf("unexpected orchestrator config %+v", oc)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("realtime:\n  temperature: 0.8\n"))
	if err == nil || !strings.Contains(err.Error(), "temperature") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "k"
	cfg.Broadcast.URL = "http://localhost:3001"
	cfg.Audio.SampleRate = 4000
	cfg.Audio.FrameSize = 0
	cfg.TurnMode = "semantic_vad"
	cfg.Log.Level = "verbose"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"broadcast.url", "audio.sample_rate", "audio.frame_size", "turn_mode", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidateRejectsNonRealtimeRate(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "k"
	cfg.Audio.SampleRate = 48000

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "audio.sample_rate 48000") {
		t.Fatalf("expected sample rate error, got %v", err)
	}

	cfg.Audio.SampleRate = 24000
	if err := Validate(cfg); err != nil {
		t.Errorf("expected 24 kHz to validate, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	ApplyEnv(cfg, envMap(map[string]string{
		"OPENAI_API_KEY":  "sk-env",
		"REALTIME_VOICE":  "verse",
		"BROADCAST_URL":   "ws://mirror:3001",
		"TURN_MODE":       "none",
		"RELAY_LOG_LEVEL": "DEBUG",
		"METRICS_ADDR":    ":9464",
		"REALTIME_MODEL":  "",
	}))

	if cfg.APIKey != "sk-env" || cfg.Realtime.Voice != "verse" || cfg.Broadcast.URL != "ws://mirror:3001" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Log.Level != LogDebug {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("expected metrics addr, got %q", cfg.Metrics.Addr)
	}
	if cfg.Realtime.Model == "" {
		t.Errorf("expected empty env value to be ignored")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "relay.yaml")
	envPath := filepath.Join(dir, "relay.env")
	promptPath := filepath.Join(dir, "prompt.txt")

	os.WriteFile(cfgPath, []byte("realtime:\n  voice: ash\nmax_event_log: 50\ninstructions_file: "+promptPath+"\n"), 0o644)
	os.WriteFile(envPath, []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o644)
	os.WriteFile(promptPath, []byte("Translate. Known: {PLACEHOLDER}"), 0o644)

	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("REALTIME_VOICE", "ballad")

	cfg, err := Load(cfgPath, envPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "sk-from-dotenv" {
		t.Errorf("expected key from env file, got %q", cfg.APIKey)
	}
	if cfg.Realtime.Voice != "ballad" {
		t.Errorf("expected environment to override file, got %q", cfg.Realtime.Voice)
	}
	if cfg.MaxEventLog != 50 {
		t.Errorf("expected max_event_log 50, got %d", cfg.MaxEventLog)
	}

	instructions, err := cfg.Instructions()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instructions != "Translate. Known: {PLACEHOLDER}" {
		t.Errorf("unexpected instructions %q", instructions)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
