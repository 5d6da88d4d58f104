// Package profile caches public user profiles for avatars and names.
package profile

import (
	"context"
	"fmt"
	"sync"

	"chat-sync-engine/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Loader fetches a single profile from the API collaborator
type Loader interface {
	GetUserProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Cache keeps every profile it loaded for the life of the process.
// Concurrent misses for the same user share one fetch.
type Cache struct {
	loader Loader

	mu      sync.RWMutex
	entries map[string]models.Profile
	group   singleflight.Group
}

// NewCache creates a new profile cache
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]models.Profile),
	}
}

// Get returns the profile of userID, loading it on a miss
func (c *Cache) Get(ctx context.Context, userID string) (models.Profile, error) {
	c.mu.RLock()
	p, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		loaded, err := c.loader.GetUserProfile(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", userID, err)
		}
		if loaded == nil {
			return nil, fmt.Errorf("profile %s not found", userID)
		}
		c.mu.Lock()
		c.entries[userID] = *loaded
		c.mu.Unlock()
		return *loaded, nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	return v.(models.Profile), nil
}

// Many resolves several profiles. Users whose profile cannot be loaded are
// left out of the result.
func (c *Cache) Many(ctx context.Context, userIDs []string) map[string]models.Profile {
	out := make(map[string]models.Profile, len(userIDs))
	for _, id := range userIDs {
		if _, done := out[id]; done {
			continue
		}
		p, err := c.Get(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("user_id", id).Msg("Profile unavailable")
			continue
		}
		out[id] = p
	}
	return out
}

// Len returns the number of cached profiles
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
