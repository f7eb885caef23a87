package store

import (
	"context"
)

// PlatformConversation binds a messaging-platform thread to its serialized
// transcript. (platform, external_id) is unique.
type PlatformConversation struct {
	ID         string `db:"id"`
	Platform   string `db:"platform"`
	ExternalID string `db:"external_id"`
	Messages   string `db:"messages"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

// UpsertPlatformConversation creates or replaces the transcript for a
// platform thread.
func (s *Store) UpsertPlatformConversation(ctx context.Context, platform, externalID, messages string) (PlatformConversation, error) {
	now := nowStamp()
	pc := PlatformConversation{
		ID:         newID(),
		Platform:   platform,
		ExternalID: externalID,
		Messages:   messages,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO platform_conversations (id, platform, external_id, messages, created_at, updated_at)
		VALUES (:id, :platform, :external_id, :messages, :created_at, :updated_at)
		ON CONFLICT(platform, external_id) DO UPDATE SET
			messages = excluded.messages,
			updated_at = excluded.updated_at`, pc)
	if err != nil {
		return PlatformConversation{}, classify(err)
	}
	return s.GetPlatformConversation(ctx, platform, externalID)
}

// GetPlatformConversation returns the transcript for a platform thread.
func (s *Store) GetPlatformConversation(ctx context.Context, platform, externalID string) (PlatformConversation, error) {
	var pc PlatformConversation
	err := s.db.GetContext(ctx, &pc,
		"SELECT * FROM platform_conversations WHERE platform = ? AND external_id = ?",
		platform, externalID)
	if err != nil {
		if errNoRows(err) {
			return PlatformConversation{}, ErrNotFound
		}
		return PlatformConversation{}, classify(err)
	}
	return pc, nil
}
