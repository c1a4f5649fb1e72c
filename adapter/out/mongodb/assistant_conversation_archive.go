package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

const transcriptCollection = "conversation_transcripts"

// ConversationArchiveAdapter stores conversation transcripts in MongoDB, one
// document per session, replaced on every completed turn.
type ConversationArchiveAdapter struct {
	collection *mongo.Collection
	log        zerolog.Logger
}

// NewConversationArchiveAdapter builds the adapter.
func NewConversationArchiveAdapter(client *mongo.Client, database string, log zerolog.Logger) *ConversationArchiveAdapter {
	return &ConversationArchiveAdapter{
		collection: client.Database(database).Collection(transcriptCollection),
		log:        log,
	}
}

var _ out.ConversationArchivePort = (*ConversationArchiveAdapter)(nil)

// SaveTranscript upserts the transcript for a session.
func (a *ConversationArchiveAdapter) SaveTranscript(ctx context.Context, record *out.TranscriptRecord) error {
	filter := bson.M{"session_id": record.SessionID}
	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, filter, record, opts); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	a.log.Debug().
		Str("session_id", record.SessionID).
		Int("messages", len(record.Messages)).
		Msg("transcript archived")
	return nil
}

// GetTranscript fetches the transcript for a session.
func (a *ConversationArchiveAdapter) GetTranscript(ctx context.Context, sessionID string) (*out.TranscriptRecord, error) {
	var record out.TranscriptRecord
	err := a.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("transcript")
		}
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	return &record, nil
}
