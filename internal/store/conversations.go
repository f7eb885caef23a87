package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Conversation groups an ordered sequence of messages under one agent.
type Conversation struct {
	ID        string `db:"id"`
	AgentID   string `db:"agent_id"`
	Title     string `db:"title"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation. Messages are append-only and
// ordered by created_at ascending.
type Message struct {
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	Role           string `db:"role"`
	Content        string `db:"content"`
	CreatedAt      string `db:"created_at"`
}

// CreateConversation creates a conversation for the given agent.
func (s *Store) CreateConversation(ctx context.Context, agentID, title string) (Conversation, error) {
	now := nowStamp()
	conv := Conversation{
		ID:        newID(),
		AgentID:   agentID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO conversations (id, agent_id, title, created_at, updated_at)
		VALUES (:id, :agent_id, :title, :created_at, :updated_at)`, conv)
	if err != nil {
		return Conversation{}, classify(err)
	}
	return conv, nil
}

// GetConversation returns a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := s.db.GetContext(ctx, &conv, "SELECT * FROM conversations WHERE id = ?", id)
	if err != nil {
		if errNoRows(err) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, classify(err)
	}
	return conv, nil
}

// ListRecentConversations returns up to limit conversations, most recently
// updated first.
func (s *Store) ListRecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	var convs []Conversation
	err := s.db.SelectContext(ctx, &convs,
		"SELECT * FROM conversations ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, classify(err)
	}
	return convs, nil
}

// AppendMessage atomically inserts the message and advances the
// conversation's updated_at to the message's created_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) (Message, error) {
	msg := Message{
		ID:             newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      nowStamp(),
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExec(`
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES (:id, :conversation_id, :role, :content, :created_at)`, msg); err != nil {
			return classify(err)
		}
		if _, err := tx.Exec(
			"UPDATE conversations SET updated_at = ? WHERE id = ?",
			msg.CreatedAt, msg.ConversationID); err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListMessages returns the newest limit messages of a conversation in
// oldest-first order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 80
	}
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, classify(err)
	}
	return msgs, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// CountConversations returns the total number of conversations.
func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM conversations"); err != nil {
		return 0, classify(err)
	}
	return n, nil
}
