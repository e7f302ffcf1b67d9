package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const boardsGenerationKey = "boards:gen"

type backend interface {
	ListVisibleBoards(ctx context.Context, user *domain.User) ([]domain.Board, error)
	SaveBoard(ctx context.Context, boardID int64, payload domain.BoardPayload) (*domain.Board, error)
	AddUserToBoard(ctx context.Context, boardID int64, user *domain.User) error
	ToggleLaneCollapsed(ctx context.Context, laneID int64, user *domain.User) (bool, error)
	AddItem(ctx context.Context, laneID int64, in domain.ItemPayload) (*domain.Item, error)
	RemoveItem(ctx context.Context, itemID int64) error
	DeactivateBoard(ctx context.Context, boardID int64) error
}

// Cache keeps each user's visible board listing in Redis. Every successful
// mutation bumps a generation counter, so listings cached before it are
// never served again and simply expire.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache wraps base with Redis-backed caching. A nil client or zero TTL
// disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListVisibleBoards(ctx context.Context, user *domain.User) ([]domain.Board, error) {
	if user == nil || c.redis == nil || c.ttl == 0 {
		return c.base.ListVisibleBoards(ctx, user)
	}
	gen, ok := c.generation(ctx)
	if !ok {
		return c.base.ListVisibleBoards(ctx, user)
	}
	key := boardsCacheKey(gen, user.ID)
	if boards, ok := c.load(ctx, key); ok {
		return boards, nil
	}

	boards, err := c.base.ListVisibleBoards(ctx, user)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, boards)
	return boards, nil
}

func (c *Cache) SaveBoard(ctx context.Context, boardID int64, payload domain.BoardPayload) (*domain.Board, error) {
	board, err := c.base.SaveBoard(ctx, boardID, payload)
	if err != nil {
		return nil, err
	}
	c.Invalidate(ctx)
	return board, nil
}

func (c *Cache) AddUserToBoard(ctx context.Context, boardID int64, user *domain.User) error {
	if err := c.base.AddUserToBoard(ctx, boardID, user); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *Cache) ToggleLaneCollapsed(ctx context.Context, laneID int64, user *domain.User) (bool, error) {
	collapsed, err := c.base.ToggleLaneCollapsed(ctx, laneID, user)
	if err != nil {
		return false, err
	}
	c.Invalidate(ctx)
	return collapsed, nil
}

func (c *Cache) AddItem(ctx context.Context, laneID int64, in domain.ItemPayload) (*domain.Item, error) {
	item, err := c.base.AddItem(ctx, laneID, in)
	if err != nil {
		return nil, err
	}
	c.Invalidate(ctx)
	return item, nil
}

func (c *Cache) RemoveItem(ctx context.Context, itemID int64) error {
	if err := c.base.RemoveItem(ctx, itemID); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *Cache) DeactivateBoard(ctx context.Context, boardID int64) error {
	if err := c.base.DeactivateBoard(ctx, boardID); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops every cached listing. Username changes call it too since
// listings embed shared users.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, boardsGenerationKey).Err(); err != nil {
		log.WithError(err).Warn("cache.invalidate.failed")
	}
}

func (c *Cache) generation(ctx context.Context) (int64, bool) {
	gen, err := c.redis.Get(ctx, boardsGenerationKey).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		// Fall back to the backing store without failing the request.
		log.WithError(err).Debug("cache.generation.unavailable")
		return 0, false
	}
	return gen, true
}

func (c *Cache) load(ctx context.Context, key string) ([]domain.Board, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var boards []domain.Board
	if err := sonic.Unmarshal(data, &boards); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return boards, true
}

func (c *Cache) store(ctx context.Context, key string, boards []domain.Board) {
	data, err := sonic.Marshal(boards)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func boardsCacheKey(gen, userID int64) string {
	return "boards:" + strconv.FormatInt(gen, 10) + ":" + strconv.FormatInt(userID, 10)
}
