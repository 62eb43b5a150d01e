package store

import "time"

// Session is the analytics row kept per chat session. IPHash is a salted
// SHA-256 of the client address; the plain address is never stored.
type Session struct {
	ID        string    `json:"session_id"`
	VisitorID string    `json:"visitor_id,omitempty"`
	IPHash    string    `json:"ip_hash,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	PageURL   string    `json:"page_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

// Message is one logged chat turn.
type Message struct {
	ID               string    `json:"id"` // Using UUID for external ID
	SessionID        string    `json:"session_id"`
	Role             string    `json:"role"` // "user" or "assistant"
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	ModelName        string    `json:"model_name,omitempty"`
	DurationMS       int64     `json:"server_duration_ms,omitempty"`
	MissingInfo      bool      `json:"missing_info"`
	RetrievedSources []string  `json:"retrieved_sources,omitempty"`
	ContextChars     int       `json:"context_chars,omitempty"`
}

// SnapshotChunk is a persisted index entry.
type SnapshotChunk struct {
	Position  int
	Text      string
	Label     string
	Kind      string
	Embedding []float32
}

// Snapshot is the persisted copy of the last successfully built index.
type Snapshot struct {
	Model     string
	BuiltAt   time.Time
	FilesJSON string
	Chunks    []SnapshotChunk
}
