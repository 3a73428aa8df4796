package capture

import (
	"errors"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
)

var (
	// ErrDeviceUnavailable is returned when no input device could be acquired
	ErrDeviceUnavailable = errors.New("input device unavailable")

	// ErrInvalidState is returned when an operation is not valid for the current capture status
	ErrInvalidState = errors.New("invalid capture state")

	// ErrUnsupportedRate is returned when the device cannot produce the configured sample rate
	ErrUnsupportedRate = audio.ErrUnsupportedRate

	// ErrAlreadyRecording is returned when a second frame consumer is registered
	ErrAlreadyRecording = audio.ErrAlreadyRecording
)
