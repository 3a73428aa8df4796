// Package config loads the relay configuration from an optional YAML file,
// a .env file and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
)

type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

type Config struct {
	// APIKey is only read from OPENAI_API_KEY.
	APIKey string `yaml:"-"`

	Realtime  RealtimeConfig  `yaml:"realtime"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Audio     AudioConfig     `yaml:"audio"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// TurnMode is the mode applied on connect: manual (or none) and server_vad.
	TurnMode string `yaml:"turn_mode"`

	// InstructionsFile replaces the embedded translator prompt.
	InstructionsFile string `yaml:"instructions_file"`

	MaxEventLog int `yaml:"max_event_log"`
}

type RealtimeConfig struct {
	URL                string `yaml:"url"`
	Model              string `yaml:"model"`
	Voice              string `yaml:"voice"`
	TranscriptionModel string `yaml:"transcription_model"`
}

type BroadcastConfig struct {
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
}

type AudioConfig struct {
	// SampleRate must be 24000: the session declares pcm16 input, which the
	// realtime endpoint reads as 24 kHz mono.
	SampleRate int `yaml:"sample_rate"`
	// FrameSize is the number of samples per frame sent to the session.
	FrameSize int `yaml:"frame_size"`
}

type LogConfig struct {
	Level LogLevel `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9464".
	Addr string `yaml:"addr"`
}

func Default() *Config {
	oc := orchestrator.DefaultConfig()
	return &Config{
		Realtime: RealtimeConfig{
			URL:                "wss://api.openai.com/v1/realtime",
			Model:              oc.Model,
			Voice:              oc.Voice,
			TranscriptionModel: oc.TranscriptionModel,
		},
		Broadcast: BroadcastConfig{
			URL:      oc.BroadcastURL,
			Language: string(oc.Language),
		},
		Audio: AudioConfig{
			SampleRate: audio.DefaultSampleRate,
			FrameSize:  audio.DefaultFrameSize,
		},
		Log:         LogConfig{Level: LogInfo, Format: "text"},
		TurnMode:    string(orchestrator.TurnManual),
		MaxEventLog: oc.MaxEventLog,
	}
}

// Instructions returns the prompt template: the contents of InstructionsFile
// when set, otherwise the embedded default.
func (c *Config) Instructions() (string, error) {
	if c.InstructionsFile == "" {
		return orchestrator.DefaultInstructions, nil
	}
	b, err := os.ReadFile(c.InstructionsFile)
	if err != nil {
		return "", fmt.Errorf("config: read instructions %q: %w", c.InstructionsFile, err)
	}
	return string(b), nil
}

// Orchestrator converts c into the orchestrator configuration.
func (c *Config) Orchestrator() (orchestrator.Config, error) {
	instructions, err := c.Instructions()
	if err != nil {
		return orchestrator.Config{}, err
	}
	return orchestrator.Config{
		Model:              c.Realtime.Model,
		Voice:              c.Realtime.Voice,
		TranscriptionModel: c.Realtime.TranscriptionModel,
		Language:           orchestrator.Language(c.Broadcast.Language),
		BroadcastURL:       c.Broadcast.URL,
		Instructions:       instructions,
		MaxEventLog:        c.MaxEventLog,
	}, nil
}
