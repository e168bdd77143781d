package live

// Status is the voice status of a live session. Exactly one status holds at a time.
type Status string

const (
	StatusOff        Status = "OFF"
	StatusIdle       Status = "IDLE"
	StatusConnecting Status = "CONNECTING"
	StatusListening  Status = "LISTENING"
	StatusSpeaking   Status = "SPEAKING"
	StatusError      Status = "ERROR"
)

// Active reports whether a session is starting or running
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusListening || s == StatusSpeaking
}

// Streaming reports whether captured media may be pushed to the model
func (s Status) Streaming() bool {
	return s == StatusListening || s == StatusSpeaking
}

func (s Status) String() string {
	return string(s)
}
