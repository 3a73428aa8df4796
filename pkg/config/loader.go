package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the YAML file at path (when
// path is not empty), then .env files, then the process environment. The
// result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables lookup reports.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("OPENAI_API_KEY", &cfg.APIKey)
	set("REALTIME_URL", &cfg.Realtime.URL)
	set("REALTIME_MODEL", &cfg.Realtime.Model)
	set("REALTIME_VOICE", &cfg.Realtime.Voice)
	set("BROADCAST_URL", &cfg.Broadcast.URL)
	set("TURN_MODE", &cfg.TurnMode)
	set("METRICS_ADDR", &cfg.Metrics.Addr)
	set("INSTRUCTIONS_FILE", &cfg.InstructionsFile)

	var level string
	set("RELAY_LOG_LEVEL", &level)
	if level != "" {
		cfg.Log.Level = LogLevel(strings.ToLower(level))
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if err := validateURL("realtime.url", cfg.Realtime.URL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Realtime.Model == "" {
		errs = append(errs, errors.New("realtime.model is required"))
	}
	if err := validateURL("broadcast.url", cfg.Broadcast.URL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Broadcast.Language == "" {
		errs = append(errs, errors.New("broadcast.language is required"))
	}

	if cfg.Audio.SampleRate != audio.DefaultSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; the realtime pcm16 format is %d Hz", cfg.Audio.SampleRate, audio.DefaultSampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	if _, err := orchestrator.ParseTurnMode(cfg.TurnMode); err != nil {
		errs = append(errs, fmt.Errorf("turn_mode %q is invalid; valid values: manual, server_vad", cfg.TurnMode))
	}
	if cfg.MaxEventLog < 0 {
		errs = append(errs, fmt.Errorf("max_event_log %d must not be negative", cfg.MaxEventLog))
	}

	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	if cfg.InstructionsFile != "" {
		if b, err := os.ReadFile(cfg.InstructionsFile); err != nil {
			errs = append(errs, fmt.Errorf("instructions_file: %w", err))
		} else if !strings.Contains(string(b), orchestrator.Placeholder) {
			slog.Warn("instructions file has no placeholder; collected fields will not be sent", "file", cfg.InstructionsFile, "placeholder", orchestrator.Placeholder)
		}
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s %q must use ws or wss", field, raw)
	}
	return nil
}
