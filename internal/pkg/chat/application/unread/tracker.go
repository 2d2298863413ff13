package unread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	cacheport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/cache/port"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
	repository "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/port"
)

const countTTL = 5 * time.Minute

// Tracker keeps per-(conversation, viewer) unread counts. The store is
// authoritative: increments happen server-side when messages are saved, and
// the tracker only re-reads counts and advances the read watermark. The cache
// is a read-through layer invalidated on message save and on mark-read; a
// cache outage degrades to direct store reads.
type Tracker struct {
	repo   repository.ChatRepository
	cache  cacheport.Cache // nil when redis is unavailable
	logger *slog.Logger
}

func NewTracker(repo repository.ChatRepository, cache cacheport.Cache, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, cache: cache, logger: logger.With("component", "unread")}
}

func key(conversationID, userID string) string {
	return fmt.Sprintf("unread:%s:%s", conversationID, userID)
}

// Count returns the viewer's unread count for the conversation.
func (t *Tracker) Count(ctx context.Context, conversationID string, userID string) (int, error) {
	if t.cache != nil {
		if raw, err := t.cache.Get(ctx, key(conversationID, userID)); err == nil {
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				return n, nil
			}
		} else if !errors.Is(err, cacheport.ErrMiss) {
			t.logger.Warn("unread cache read failed", "error", err)
		}
	}

	n, err := t.repo.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if t.cache != nil {
		if err := t.cache.Set(ctx, key(conversationID, userID), strconv.Itoa(n), countTTL); err != nil {
			t.logger.Warn("unread cache write failed", "error", err)
		}
	}
	return n, nil
}

// MarkRead advances the viewer's read watermark and drops the cached count.
// Idempotent: always safe to call, even when already read. Calling it for a
// user who is not a participant reports chat.ErrNotParticipant.
func (t *Tracker) MarkRead(ctx context.Context, conversationID string, userID string) error {
	err := t.repo.MarkRead(ctx, conversationID, userID, time.Now().UTC())
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.ErrNotParticipant
	}
	if err != nil {
		return err
	}
	t.drop(ctx, conversationID, userID)
	return nil
}

// Invalidate drops cached counts for the given viewers, typically after a
// message was saved to the conversation.
func (t *Tracker) Invalidate(ctx context.Context, conversationID string, userIDs ...string) {
	for _, id := range userIDs {
		t.drop(ctx, conversationID, id)
	}
}

func (t *Tracker) drop(ctx context.Context, conversationID string, userID string) {
	if t.cache == nil {
		return
	}
	if _, err := t.cache.Del(ctx, key(conversationID, userID)); err != nil {
		t.logger.Warn("unread cache invalidation failed", "error", err, "conversation_id", conversationID)
	}
}
