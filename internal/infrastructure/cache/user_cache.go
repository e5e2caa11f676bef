package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"auction-engine/internal/domain"
)

const DefaultUserCacheSize = 4096

var _ domain.UserDirectory = (*UserCache)(nil)

// UserCache keeps bidder and seller summaries in front of a slower
// directory. Users missing upstream are not cached.
type UserCache struct {
	next  domain.UserDirectory
	cache *lru.Cache
}

func NewUserCache(next domain.UserDirectory, size int) (*UserCache, error) {
	if size <= 0 {
		size = DefaultUserCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}
	return &UserCache{next: next, cache: c}, nil
}

func (c *UserCache) GetUsers(ctx context.Context, userIDs []int64) (map[int64]*domain.User, error) {
	users := make(map[int64]*domain.User, len(userIDs))
	var missing []int64

	for _, id := range userIDs {
		if cached, ok := c.cache.Get(id); ok {
			user := *cached.(*domain.User)
			users[id] = &user
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return users, nil
	}

	loaded, err := c.next.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}

	for id, user := range loaded {
		stored := *user
		c.cache.Add(id, &stored)
		users[id] = user
	}

	return users, nil
}

// Invalidate drops a user so the next lookup reaches the directory.
func (c *UserCache) Invalidate(userID int64) {
	c.cache.Remove(userID)
}
