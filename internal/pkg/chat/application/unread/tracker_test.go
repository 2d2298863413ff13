package unread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/cache/port"
	chat "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/domain"
)

// mapCache is a port.Cache over a plain map, for tests.
type mapCache struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string]string{}}
}

func (c *mapCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return "", cacheport.ErrMiss
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Del(ctx context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func (c *mapCache) Ping(ctx context.Context) error { return nil }
func (c *mapCache) Close() error                   { return nil }

func (c *mapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// countingRepo implements the repository surface the tracker touches and
// counts store reads so cache hits are observable.
type countingRepo struct {
	mu         sync.Mutex
	unread     map[string]int // "conv/user"
	countCalls int
	markCalls  int
	markErr    error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{unread: map[string]int{}}
}

func (r *countingRepo) CountUnread(ctx context.Context, conversationID string, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countCalls++
	return r.unread[conversationID+"/"+userID], nil
}

func (r *countingRepo) MarkRead(ctx context.Context, conversationID string, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	if r.markErr != nil {
		return r.markErr
	}
	r.unread[conversationID+"/"+userID] = 0
	return nil
}

func (r *countingRepo) CreateConversation(ctx context.Context, c chat.Conversation) (string, error) {
	return "", errors.New("not implemented")
}
func (r *countingRepo) AddParticipant(ctx context.Context, p chat.Participant) error {
	return errors.New("not implemented")
}
func (r *countingRepo) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	return false, errors.New("not implemented")
}
func (r *countingRepo) ListParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	return nil, errors.New("not implemented")
}
func (r *countingRepo) ListConversations(ctx context.Context, viewerID string, limit int) ([]chat.ConversationSummary, error) {
	return nil, errors.New("not implemented")
}
func (r *countingRepo) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	return "", errors.New("not implemented")
}
func (r *countingRepo) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	return nil, errors.New("not implemented")
}
func (r *countingRepo) LastMessageAt(ctx context.Context, conversationID string) (*time.Time, error) {
	return nil, errors.New("not implemented")
}

func TestCount_ReadsThroughAndCaches(t *testing.T) {
	repo := newCountingRepo()
	cache := newMapCache()
	tr := NewTracker(repo, cache, nil)
	ctx := context.Background()

	repo.unread["conv-1/alice"] = 3

	n, err := tr.Count(ctx, "conv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, repo.countCalls)

	// Second read is served from the cache.
	n, err = tr.Count(ctx, "conv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, repo.countCalls)
}

func TestCount_CacheOutageFallsBackToStore(t *testing.T) {
	repo := newCountingRepo()
	cache := newMapCache()
	cache.getErr = errors.New("connection refused")
	tr := NewTracker(repo, cache, nil)

	repo.unread["conv-1/alice"] = 2

	n, err := tr.Count(context.Background(), "conv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, repo.countCalls)
}

func TestCount_NoCacheConfigured(t *testing.T) {
	repo := newCountingRepo()
	tr := NewTracker(repo, nil, nil)

	repo.unread["conv-1/alice"] = 5

	n, err := tr.Count(context.Background(), "conv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMarkRead_DropsCachedCount(t *testing.T) {
	repo := newCountingRepo()
	cache := newMapCache()
	tr := NewTracker(repo, cache, nil)
	ctx := context.Background()

	repo.unread["conv-1/alice"] = 4
	_, err := tr.Count(ctx, "conv-1", "alice")
	require.NoError(t, err)
	require.True(t, cache.has("unread:conv-1:alice"))

	require.NoError(t, tr.MarkRead(ctx, "conv-1", "alice"))
	assert.False(t, cache.has("unread:conv-1:alice"))

	n, err := tr.Count(ctx, "conv-1", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Marking an already-read conversation stays safe.
	require.NoError(t, tr.MarkRead(ctx, "conv-1", "alice"))
	assert.Equal(t, 2, repo.markCalls)
}

func TestMarkRead_NonParticipant(t *testing.T) {
	repo := newCountingRepo()
	repo.markErr = pgx.ErrNoRows
	tr := NewTracker(repo, newMapCache(), nil)

	err := tr.MarkRead(context.Background(), "conv-1", "mallory")
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
}

func TestInvalidate_DropsAllListedViewers(t *testing.T) {
	repo := newCountingRepo()
	cache := newMapCache()
	tr := NewTracker(repo, cache, nil)
	ctx := context.Background()

	repo.unread["conv-1/alice"] = 1
	repo.unread["conv-1/bob"] = 2
	_, _ = tr.Count(ctx, "conv-1", "alice")
	_, _ = tr.Count(ctx, "conv-1", "bob")

	tr.Invalidate(ctx, "conv-1", "alice", "bob")
	assert.False(t, cache.has("unread:conv-1:alice"))
	assert.False(t, cache.has("unread:conv-1:bob"))
}
