package domain

import "time"

// Chunk is a bounded slice of a record's text, the unit of embedding and
// retrieval. Position is its index in the build that produced it.
type Chunk struct {
	Text     string     `json:"text"`
	Label    string     `json:"label"`
	Kind     SourceKind `json:"kind"`
	Position int        `json:"position"`
}

// RetrievedChunk is a chunk returned by a similarity query.
type RetrievedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation session.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"content"`
	At   time.Time `json:"timestamp"`
}
