package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sakura-go/sakura/internal/config"
	"github.com/sakura-go/sakura/internal/models"
	"github.com/sakura-go/sakura/pkg/sakura"
	"github.com/sirupsen/logrus"
)

const (
	KindCharacter = "character"
	KindSearch    = "search"
)

// Service defines cache operations
type Service interface {
	GetCharacter(ctx context.Context, id string) (*sakura.Character, bool)
	SetCharacter(ctx context.Context, character *sakura.Character) error
	GetSearch(ctx context.Context, query string, opts sakura.SearchOptions) ([]sakura.Character, bool)
	SetSearch(ctx context.Context, query string, opts sakura.SearchOptions, characters []sakura.Character) error
	Clear(ctx context.Context) error
}

// Cache implements caching service
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.CacheConfig, logger *logrus.Logger) *Cache {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// GetCharacter retrieves a cached character
func (c *Cache) GetCharacter(ctx context.Context, id string) (*sakura.Character, bool) {
	val, ok := c.get(KindCharacter, id)
	if !ok {
		return nil, false
	}
	character := val.(sakura.Character)
	return &character, true
}

// SetCharacter stores a character by id
func (c *Cache) SetCharacter(ctx context.Context, character *sakura.Character) error {
	if character == nil || character.ID == "" {
		return fmt.Errorf("character without id cannot be cached")
	}
	c.set(KindCharacter, character.ID, *character)
	return nil
}

// GetSearch retrieves cached search results
func (c *Cache) GetSearch(ctx context.Context, query string, opts sakura.SearchOptions) ([]sakura.Character, bool) {
	val, ok := c.get(KindSearch, searchKey(query, opts))
	if !ok {
		return nil, false
	}
	cached := val.([]sakura.Character)
	return append([]sakura.Character(nil), cached...), true
}

// SetSearch stores search results
func (c *Cache) SetSearch(ctx context.Context, query string, opts sakura.SearchOptions, characters []sakura.Character) error {
	c.set(KindSearch, searchKey(query, opts), append([]sakura.Character(nil), characters...))
	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

func (c *Cache) get(kind, key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}

	val, found := c.cache.Get(c.generateKey(kind, key))
	if !found {
		return nil, false
	}

	entry := val.(*models.CacheEntry)
	c.logger.WithFields(logrus.Fields{
		"kind": kind,
		"key":  key,
		"age":  time.Since(entry.CreatedAt),
	}).Debug("Cache hit")
	return entry.Value, true
}

func (c *Cache) set(kind, key string, value any) {
	if !c.enabled {
		return
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.logger.Warn("Cache size limit reached, clearing")
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(c.generateKey(kind, key), &models.CacheEntry{
		Kind:      kind,
		Key:       key,
		Value:     value,
		CreatedAt: time.Now(),
	})
	c.logger.WithFields(logrus.Fields{
		"kind": kind,
		"key":  key,
	}).Debug("Result cached")
}

// generateKey creates a unique cache key
func (c *Cache) generateKey(kind, key string) string {
	data := fmt.Sprintf("%s:%s", kind, key)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// searchKey is independent of category order.
func searchKey(query string, opts sakura.SearchOptions) string {
	names := make([]string, len(opts.Categories))
	for i, cat := range opts.Categories {
		names[i] = cat.String()
	}
	sort.Strings(names)

	match := opts.MatchType
	if len(names) < 2 {
		match = ""
	} else if match == "" {
		match = sakura.MatchAny
	}

	return fmt.Sprintf("%q|sfw=%t|%s|%s", query, opts.SFWOnly, strings.Join(names, ","), match)
}
