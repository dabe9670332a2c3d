// internal/data/store.go
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/askbase-go/internal/config"
	"github.com/askbase-go/internal/models"
)

// ErrProjectNotFound is returned when a project id resolves to nothing.
var ErrProjectNotFound = errors.New("project not found")

// Store persists projects, conversations, and prompt records in redis.
// Prompt records follow a two-phase lifecycle: created with a placeholder
// response before the upstream call so ids are available for response
// headers, then finalized once the full response text is known.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a redis-backed store.
func NewStore(cfg config.RedisConfig) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Ping verifies redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func projectKey(id string) string      { return "project:" + id }
func conversationKey(id string) string { return "conversation:" + id }
func promptKey(id string) string       { return "prompt:" + id }

// GetProject resolves a project id to its stored configuration, including
// team tier and any bring-your-own API key.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	fields, err := s.rdb.HGetAll(ctx, projectKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read project %q: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrProjectNotFound
	}
	return &models.Project{
		ID:        id,
		TeamID:    fields["team_id"],
		Tier:      fields["tier"],
		OpenAIKey: fields["openai_key"],
	}, nil
}

// EnsureConversation returns the given conversation id when it exists, and
// otherwise mints a new conversation for the project. Metadata is stored
// opaque.
func (s *Store) EnsureConversation(ctx context.Context, projectID, conversationID string, metadata json.RawMessage) (string, error) {
	if conversationID != "" {
		exists, err := s.rdb.Exists(ctx, conversationKey(conversationID)).Result()
		if err != nil {
			return "", fmt.Errorf("failed to check conversation %q: %w", conversationID, err)
		}
		if exists > 0 {
			return conversationID, nil
		}
	}

	id := uuid.New().String()
	values := map[string]interface{}{
		"project_id": projectID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if len(metadata) > 0 {
		values["metadata"] = string(metadata)
	}
	if err := s.rdb.HSet(ctx, conversationKey(id), values).Err(); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	if err := s.rdb.RPush(ctx, projectKey(projectID)+":conversations", id).Err(); err != nil {
		return "", fmt.Errorf("failed to index conversation: %w", err)
	}
	return id, nil
}

// CreatePrompt inserts a prompt record. The record's ID is minted here when
// absent and is set on the passed record so callers can return it in headers
// before the response text exists.
func (s *Store) CreatePrompt(ctx context.Context, rec *models.PromptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	refsJSON, err := json.Marshal(rec.References)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}
	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	values := map[string]interface{}{
		"project_id":            rec.ProjectID,
		"conversation_id":       rec.ConversationID,
		"prompt":                rec.Prompt,
		"response":              rec.Response,
		"embedding":             string(embeddingJSON),
		"references":            string(refsJSON),
		"status":                rec.Status,
		"exclude_from_insights": rec.ExcludeFromInsights,
		"redact":                rec.Redact,
		"created_at":            rec.CreatedAt.Format(time.RFC3339),
	}
	if err := s.rdb.HSet(ctx, promptKey(rec.ID), values).Err(); err != nil {
		return fmt.Errorf("failed to create prompt record: %w", err)
	}
	if rec.ConversationID != "" {
		if err := s.rdb.RPush(ctx, conversationKey(rec.ConversationID)+":prompts", rec.ID).Err(); err != nil {
			return fmt.Errorf("failed to index prompt record: %w", err)
		}
	}
	return nil
}

// FinalizePrompt updates a prompt record in place once the response text and
// status classification are known.
func (s *Store) FinalizePrompt(ctx context.Context, promptID, response, status string) error {
	values := map[string]interface{}{
		"response":     response,
		"status":       status,
		"finalized_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.rdb.HSet(ctx, promptKey(promptID), values).Err(); err != nil {
		return fmt.Errorf("failed to finalize prompt record: %w", err)
	}
	return nil
}

// Redis exposes the underlying client for collaborators that share the
// connection, like the rate limiter.
func (s *Store) Redis() *redis.Client {
	return s.rdb
}
