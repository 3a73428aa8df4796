package capture

// Status is the capture controller state.
type Status string

const (
	StatusEnded     Status = "ended"
	StatusPaused    Status = "paused"
	StatusRecording Status = "recording"
)

func (s Status) String() string {
	return string(s)
}
