package generate

// Status is the service status of an engine. Exactly one value is live at a
// time; it drives the editor's status indicator and has no effect on results.
type Status int

const (
	StatusStarting Status = iota
	StatusChecking
	StatusReady
	StatusModelNotFound
	StatusOffline
	StatusGenerating
	StatusError
)

var statusNames = [...]string{
	StatusStarting:      "starting",
	StatusChecking:      "checking",
	StatusReady:         "ready",
	StatusModelNotFound: "model_not_found",
	StatusOffline:       "offline",
	StatusGenerating:    "generating",
	StatusError:         "error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
