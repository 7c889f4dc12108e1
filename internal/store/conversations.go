package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles. Tool results are persisted as their own role so the audit
// trail distinguishes them from user-authored text.
const (
	RoleUser       = "user"
	RoleAgent      = "agent"
	RoleToolResult = "tool-result"
)

type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	CreatedAt time.Time
}

type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	Position       int
	CreatedAt      time.Time
}

type ToolInvocation struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	ToolName  string
	Arguments string
	Result    string
	Error     string
	CreatedAt time.Time
}

func (s *Store) CreateConversation(ctx context.Context, owner uuid.UUID, title string) (Conversation, error) {
	c := Conversation{
		ID:        uuid.New(),
		UserID:    owner,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		c.ID.String(), owner.String(), c.Title, c.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, COALESCE(title, ''), created_at FROM conversations WHERE id = ?`,
		id.String())
	var c Conversation
	var cid, uid string
	err := row.Scan(&cid, &uid, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	if c.ID, err = uuid.Parse(cid); err != nil {
		return Conversation{}, err
	}
	if c.UserID, err = uuid.Parse(uid); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// AppendMessage adds a message at the next position. The position is read
// and assigned inside one transaction, so appends to the same conversation
// serialize on sqlite's write lock and positions never collide.
func (s *Store) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback()

	var pos int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM messages WHERE conversation_id = ?`,
		conversationID.String()).Scan(&pos); err != nil {
		return Message{}, err
	}

	m := Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Position:       pos,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, position, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), conversationID.String(), m.Role, m.Content, m.Position, m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessages returns the conversation transcript oldest-first. When limit
// is > 0 only the newest limit messages are returned, still oldest-first,
// so the replayed window always ends at the latest turn.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	q := `SELECT id, conversation_id, role, content, position, created_at
	      FROM messages WHERE conversation_id = ? ORDER BY position`
	args := []any{conversationID.String()}
	if limit > 0 {
		q = `SELECT * FROM (
		       SELECT id, conversation_id, role, content, position, created_at
		       FROM messages WHERE conversation_id = ? ORDER BY position DESC LIMIT ?
		     ) ORDER BY position`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var id, cid string
		if err := rows.Scan(&id, &cid, &m.Role, &m.Content, &m.Position, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if m.ConversationID, err = uuid.Parse(cid); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RecordToolInvocation writes one audit record for an executed (or rejected)
// tool call. errText is empty on success.
func (s *Store) RecordToolInvocation(ctx context.Context, messageID uuid.UUID, toolName, arguments, result, errText string) (ToolInvocation, error) {
	inv := ToolInvocation{
		ID:        uuid.New(),
		MessageID: messageID,
		ToolName:  toolName,
		Arguments: arguments,
		Result:    result,
		Error:     errText,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_invocations (id, message_id, tool_name, arguments, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), messageID.String(), inv.ToolName, inv.Arguments, inv.Result, inv.Error, inv.CreatedAt)
	if err != nil {
		return ToolInvocation{}, err
	}
	return inv, nil
}

// InvocationsByMessage returns audit records attached to an agent message,
// oldest first.
func (s *Store) InvocationsByMessage(ctx context.Context, messageID uuid.UUID) ([]ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, tool_name, arguments, COALESCE(result, ''), COALESCE(error, ''), created_at
		 FROM tool_invocations WHERE message_id = ? ORDER BY created_at, id`, messageID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invs := []ToolInvocation{}
	for rows.Next() {
		var inv ToolInvocation
		var id, mid string
		if err := rows.Scan(&id, &mid, &inv.ToolName, &inv.Arguments, &inv.Result, &inv.Error, &inv.CreatedAt); err != nil {
			return nil, err
		}
		if inv.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if inv.MessageID, err = uuid.Parse(mid); err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}
