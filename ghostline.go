// Package ghostline defines the request/response types for ghostline IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package ghostline

// Request asks the daemon for an inline completion at the cursor.
type Request struct {
	// RequestID is a per-session incrementing identifier assigned by the editor.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id"`
	// SessionID identifies the editor instance. Each session owns one engine.
	SessionID string `json:"session_id"`
	// URI identifies the document being edited.
	URI string `json:"uri"`
	// LanguageID is the editor's language identifier for the document.
	LanguageID string `json:"language_id"`
	// Text is the full document text at the time of the request.
	Text string `json:"text"`
	// Line is the zero-based cursor line.
	Line int `json:"line"`
	// Character is the zero-based cursor offset within the line, in runes.
	Character int `json:"character"`
}

// Suggestion is a single-line completion anchored at an insertion point.
// The replacement range is always zero-length.
type Suggestion struct {
	Text      string `json:"text"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

// Notice is a user-visible notification raised while serving a session.
type Notice struct {
	// Level is "error" or "warning".
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Response is sent from the daemon back to the editor.
type Response struct {
	// RequestID is echoed from the request for ordering on the client side.
	RequestID int `json:"request_id"`
	// Suggestion is nil when there is nothing to insert.
	Suggestion *Suggestion `json:"suggestion"`
	// Status is the session's service status after the request resolved.
	Status string `json:"status"`
	// Notices carries notifications raised since the previous response.
	Notices []Notice `json:"notices,omitempty"`
	// Error is set when the daemon cannot process the request at all.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the editor.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "invalid_request").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// DocumentRequest keeps the daemon's copy of a document current between
// completion requests, so debounced requests see the latest text.
type DocumentRequest struct {
	// Type is always "document".
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	URI        string `json:"uri"`
	LanguageID string `json:"language_id"`
	Text       string `json:"text"`
	// Closed drops the document from the store.
	Closed bool `json:"closed,omitempty"`
}

// DocumentResponse acknowledges a DocumentRequest.
type DocumentResponse struct {
	OK    bool   `json:"ok"`
	Error *Error `json:"error,omitempty"`
}

// StatusRequest queries, or re-checks, the service status of a session.
type StatusRequest struct {
	// Type is always "status".
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	// Recheck runs a fresh availability check before answering.
	Recheck bool `json:"recheck,omitempty"`
}

// StatusResponse reports the service status of a session.
type StatusResponse struct {
	Status  string   `json:"status"`
	Host    string   `json:"host"`
	Model   string   `json:"model"`
	Notices []Notice `json:"notices,omitempty"`
}

// ConfigRequest is sent from the editor for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt", or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default prompt template (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
