package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
)

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

func (r *PgChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgChatRepository: nil pool")
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat.conversation (created_at, tenant_id, kind, name)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4)
		RETURNING id::text
	`, c.CreatedAt, c.TenantID, c.Kind, c.Name).Scan(&id)
	return id, err
}

func (r *PgChatRepository) AddParticipant(ctx context.Context, p chat.Participant) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.participant (conversation_id, user_id, role, display_name, email, last_read_msg, last_read_at, muted_until)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6::uuid, $7, $8)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET role = EXCLUDED.role,
		              display_name = EXCLUDED.display_name,
		              email = EXCLUDED.email,
		              muted_until = EXCLUDED.muted_until
	`, p.ConversationID, p.UserID, p.Role, p.DisplayName, p.Email, p.LastReadMsg, p.LastReadAt, p.MutedUntil)
	return err
}

func (r *PgChatRepository) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgChatRepository: nil pool")
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat.participant
			WHERE conversation_id = $1::uuid AND user_id = $2::uuid
		)
	`, conversationID, userID).Scan(&ok)
	return ok, err
}

func (r *PgChatRepository) ListParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id::text, user_id::text, role, display_name, email, last_read_msg::text, last_read_at, muted_until
		FROM chat.participant
		WHERE conversation_id = $1::uuid
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParticipants(rows)
}

func (r *PgChatRepository) ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT c.id::text, c.created_at, COALESCE(c.tenant_id::text, ''), c.kind, c.name,
		       lm.body, lm.created_at,
		       (SELECT count(*) FROM chat.message m
		         WHERE m.conversation_id = c.id
		           AND m.sender_id <> $1::uuid
		           AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at))::int AS unread
		FROM chat.conversation c
		JOIN chat.participant p ON p.conversation_id = c.id AND p.user_id = $1::uuid
		LEFT JOIN LATERAL (
			SELECT body, created_at FROM chat.message m
			WHERE m.conversation_id = c.id
			ORDER BY created_at DESC
			LIMIT 1
		) lm ON true
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC
		LIMIT $2
	`, viewerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []chat.ConversationSummary
	ids := make([]string, 0, limit)
	for rows.Next() {
		var s chat.ConversationSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.TenantID, &s.Kind, &s.Name,
			&s.LastMessageBody, &s.LastMessageAt, &s.UnreadCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
		ids = append(ids, s.ID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	// Second pass: hydrate participants for the returned page in one query.
	prows, err := r.pool.Query(ctx, `
		SELECT conversation_id::text, user_id::text, role, display_name, email, last_read_msg::text, last_read_at, muted_until
		FROM chat.participant
		WHERE conversation_id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	participants, err := scanParticipants(prows)
	if err != nil {
		return nil, err
	}
	byConversation := make(map[string][]chat.Participant, len(summaries))
	for _, p := range participants {
		byConversation[p.ConversationID] = append(byConversation[p.ConversationID], p)
	}
	for i := range summaries {
		summaries[i].Participants = byConversation[summaries[i].ID]
	}
	return summaries, nil
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgChatRepository: nil pool")
	}
	var id string
	// sender_name/sender_email are denormalized from the participant row at
	// insert time so listings render without an account-service join.
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat.message (
			conversation_id, sender_id, created_at, body, msg_type, attachment_url, attachment_meta, dedupe_key, sender_name, sender_email
		)
		SELECT $1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, p.display_name, p.email
		FROM chat.participant p
		WHERE p.conversation_id = $1::uuid AND p.user_id = $2::uuid
		RETURNING id::text
	`, m.ConversationID, m.SenderID, m.CreatedAt, m.Body, m.MsgType, m.AttachmentURL, m.AttachmentMeta, m.DedupeKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", chat.ErrNotParticipant
	}
	return id, err
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, conversation_id::text, sender_id::text, created_at, body, msg_type, attachment_url, attachment_meta, dedupe_key, sender_name, sender_email
		FROM chat.message
		WHERE conversation_id = $1::uuid
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.CreatedAt,
			&msg.Body, &msg.MsgType, &msg.AttachmentURL, &msg.AttachmentMeta, &msg.DedupeKey,
			&msg.SenderName, &msg.SenderEmail); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgChatRepository) LastMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	var at *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT max(created_at) FROM chat.message WHERE conversation_id = $1::uuid
	`, conversationID).Scan(&at)
	return at, err
}

func (r *PgChatRepository) MarkRead(ctx context.Context, conversationID string, userID string, at time.Time) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat.participant
		SET last_read_at = $3,
		    last_read_msg = (
			SELECT id FROM chat.message
			WHERE conversation_id = $1::uuid
			ORDER BY created_at DESC
			LIMIT 1
		    )
		WHERE conversation_id = $1::uuid AND user_id = $2::uuid
	`, conversationID, userID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgChatRepository) CountUnread(ctx context.Context, conversationID string, userID string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgChatRepository: nil pool")
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)::int
		FROM chat.message m
		JOIN chat.participant p ON p.conversation_id = m.conversation_id AND p.user_id = $2::uuid
		WHERE m.conversation_id = $1::uuid
		  AND m.sender_id <> $2::uuid
		  AND (p.last_read_at IS NULL OR m.created_at > p.last_read_at)
	`, conversationID, userID).Scan(&n)
	return n, err
}

func scanParticipants(rows pgx.Rows) ([]chat.Participant, error) {
	var out []chat.Participant
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.DisplayName, &p.Email,
			&p.LastReadMsg, &p.LastReadAt, &p.MutedUntil); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
