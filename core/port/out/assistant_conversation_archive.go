package out

import (
	"context"
	"time"
)

// TranscriptMessage mirrors a conversation message for archival.
type TranscriptMessage struct {
	Role    string    `bson:"role" json:"role"`
	Content string    `bson:"content" json:"content"`
	Time    time.Time `bson:"time" json:"time"`
}

// TranscriptRecord is a completed-turn snapshot of a conversation.
type TranscriptRecord struct {
	SessionID string              `bson:"session_id" json:"session_id"`
	UserID    string              `bson:"user_id" json:"user_id"`
	Messages  []TranscriptMessage `bson:"messages" json:"messages"`
	Routing   string              `bson:"routing" json:"routing"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updated_at"`
}

// ConversationArchivePort stores conversation transcripts durably. The
// in-memory state store stays authoritative; the archive is best-effort.
type ConversationArchivePort interface {
	SaveTranscript(ctx context.Context, record *TranscriptRecord) error
	GetTranscript(ctx context.Context, sessionID string) (*TranscriptRecord, error)
}
