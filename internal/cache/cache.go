// Package cache provides an in-process read-through cache over the
// slowly-changing reference data (sources, patterns, footers,
// destinations) plus a short duplicate-message suppression window.
//
// Writers replace entries wholesale under the lock so concurrent
// readers always observe either the old or the new snapshot.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mirror_bot/internal/model"
)

// duplicateWindow is how long a (chat, message) pair suppresses
// re-processing of an identical delivery.
const duplicateWindow = 10 * time.Second

// Store is the subset of the persistence layer the cache reads through to.
type Store interface {
	GetSource(ctx context.Context, channelID int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListPatterns(ctx context.Context, channelID int64) ([]string, error)
	ListDestinations(ctx context.Context) ([]model.Destination, error)
	GetFooter(ctx context.Context, channelID int64) (string, bool, error)
}

type footerEntry struct {
	value string
	set   bool
}

type dupKey struct {
	chatID    int64
	messageID int
}

// Cache memoizes reference data. All methods are safe for concurrent use.
type Cache struct {
	store Store
	log   *slog.Logger

	mu           sync.RWMutex
	sources      map[int64]model.SourceDisplay
	patterns     map[int64][]string
	footers      map[int64]footerEntry
	destinations []model.Destination
	destMap      map[string]int64
	destRegions  []string
	initialized  bool

	recent map[dupKey]time.Time
	now    func() time.Time
}

// New creates an empty cache over the given store.
func New(store Store, log *slog.Logger) *Cache {
	return &Cache{
		store:    store,
		log:      log,
		sources:  make(map[int64]model.SourceDisplay),
		patterns: make(map[int64][]string),
		footers:  make(map[int64]footerEntry),
		destMap:  make(map[string]int64),
		recent:   make(map[dupKey]time.Time),
		now:      time.Now,
	}
}

// IsDuplicateMessage reports whether the (chat, message) pair was seen
// within the last ten seconds. Unseen pairs are registered. Stale
// entries are pruned on every call, bounding memory without a
// background task.
func (c *Cache) IsDuplicateMessage(chatID int64, messageID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, seen := range c.recent {
		if now.Sub(seen) >= duplicateWindow {
			delete(c.recent, k)
		}
	}

	key := dupKey{chatID: chatID, messageID: messageID}
	if _, ok := c.recent[key]; ok {
		return true
	}
	c.recent[key] = now
	return false
}

// GetSource returns the display projection for a source channel. A cold
// cache is warmed first; a miss after warming falls back to fetching
// the single channel.
func (c *Cache) GetSource(ctx context.Context, channelID int64) (model.SourceDisplay, error) {
	if err := c.ensureWarm(ctx); err != nil {
		return model.SourceDisplay{}, err
	}

	c.mu.RLock()
	src, ok := c.sources[channelID]
	c.mu.RUnlock()
	if ok {
		return src, nil
	}

	c.log.Info("source not in cache, fetching individually", "channel_id", channelID)
	full, err := c.store.GetSource(ctx, channelID)
	if err != nil {
		return model.SourceDisplay{}, fmt.Errorf("fetch source %d: %w", channelID, err)
	}
	src = full.Display()

	c.mu.Lock()
	c.sources[channelID] = src
	c.mu.Unlock()
	return src, nil
}

// GetPatterns returns the bloat patterns for a channel, fetching and
// memoizing them on first access.
func (c *Cache) GetPatterns(ctx context.Context, channelID int64) ([]string, error) {
	c.mu.RLock()
	patterns, ok := c.patterns[channelID]
	c.mu.RUnlock()
	if ok {
		return patterns, nil
	}

	c.log.Info("patterns not in cache, fetching", "channel_id", channelID)
	patterns, err := c.store.ListPatterns(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("fetch patterns %d: %w", channelID, err)
	}
	if patterns == nil {
		patterns = []string{}
	}

	c.mu.Lock()
	c.patterns[channelID] = patterns
	c.mu.Unlock()
	return patterns, nil
}

// GetFooter returns the footer for a destination channel. A fetched-but-
// absent footer is cached too, so repeat lookups stay in memory.
func (c *Cache) GetFooter(ctx context.Context, channelID int64) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.footers[channelID]
	c.mu.RUnlock()
	if ok {
		return entry.value, entry.set, nil
	}

	c.log.Info("footer not in cache, fetching", "channel_id", channelID)
	footer, set, err := c.store.GetFooter(ctx, channelID)
	if err != nil {
		return "", false, fmt.Errorf("fetch footer %d: %w", channelID, err)
	}

	c.mu.Lock()
	c.footers[channelID] = footerEntry{value: footer, set: set}
	c.mu.Unlock()
	return footer, set, nil
}

// GetDestinations returns the full destination list, warming the cache
// if needed.
func (c *Cache) GetDestinations(ctx context.Context) ([]model.Destination, error) {
	if err := c.ensureWarm(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destinations, nil
}

// GetDestinationMap returns the precomputed region-name to channel-ID
// map. It never blocks on I/O.
func (c *Cache) GetDestinationMap() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destMap
}

// GetDestinationRegions returns the precomputed region name list. It
// never blocks on I/O.
func (c *Cache) GetDestinationRegions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.destRegions
}

// RefreshSources reloads all sources, replacing the cached set.
func (c *Cache) RefreshSources(ctx context.Context) error {
	sources, err := c.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("refresh sources: %w", err)
	}

	fresh := make(map[int64]model.SourceDisplay, len(sources))
	for _, s := range sources {
		fresh[s.ChannelID] = s.Display()
	}

	c.mu.Lock()
	c.sources = fresh
	c.mu.Unlock()

	c.log.Info("refreshed sources cache", "count", len(fresh))
	return nil
}

// RefreshDestinations reloads the destination list and recomputes the
// derived map and region list from the same snapshot.
func (c *Cache) RefreshDestinations(ctx context.Context) error {
	dests, err := c.store.ListDestinations(ctx)
	if err != nil {
		return fmt.Errorf("refresh destinations: %w", err)
	}

	destMap := make(map[string]int64, len(dests))
	regions := make([]string, 0, len(dests))
	for _, d := range dests {
		name := strings.ToLower(d.Name)
		if _, ok := destMap[name]; !ok {
			regions = append(regions, name)
		}
		destMap[name] = d.ChannelID
	}

	c.mu.Lock()
	c.destinations = dests
	c.destMap = destMap
	c.destRegions = regions
	c.mu.Unlock()

	c.log.Info("refreshed destinations cache", "count", len(dests), "regions", regions)
	return nil
}

// RefreshPatterns reloads the patterns of a single channel.
func (c *Cache) RefreshPatterns(ctx context.Context, channelID int64) error {
	patterns, err := c.store.ListPatterns(ctx, channelID)
	if err != nil {
		return fmt.Errorf("refresh patterns %d: %w", channelID, err)
	}
	if patterns == nil {
		patterns = []string{}
	}

	c.mu.Lock()
	c.patterns[channelID] = patterns
	c.mu.Unlock()
	return nil
}

// RefreshFooter reloads the footer of a single destination channel.
func (c *Cache) RefreshFooter(ctx context.Context, channelID int64) error {
	footer, set, err := c.store.GetFooter(ctx, channelID)
	if err != nil {
		return fmt.Errorf("refresh footer %d: %w", channelID, err)
	}

	c.mu.Lock()
	c.footers[channelID] = footerEntry{value: footer, set: set}
	c.mu.Unlock()
	return nil
}

// RefreshAll reloads sources and destinations and marks the cache warm.
// This backs the operator /refresh command.
func (c *Cache) RefreshAll(ctx context.Context) error {
	start := time.Now()

	if err := c.RefreshSources(ctx); err != nil {
		return err
	}
	if err := c.RefreshDestinations(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.log.Info("refreshed all caches", "elapsed", time.Since(start))
	return nil
}

// InvalidateSource drops a single source so the next access re-fetches.
func (c *Cache) InvalidateSource(channelID int64) {
	c.mu.Lock()
	delete(c.sources, channelID)
	c.mu.Unlock()
}

// InvalidatePatterns drops the cached patterns of a channel.
func (c *Cache) InvalidatePatterns(channelID int64) {
	c.mu.Lock()
	delete(c.patterns, channelID)
	c.mu.Unlock()
}

// InvalidateFooter drops the cached footer of a channel.
func (c *Cache) InvalidateFooter(channelID int64) {
	c.mu.Lock()
	delete(c.footers, channelID)
	c.mu.Unlock()
}

// Counts returns the number of cached sources, destinations, and
// regions, for operator command summaries.
func (c *Cache) Counts() (sources, destinations, regions int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources), len(c.destinations), len(c.destRegions)
}

func (c *Cache) ensureWarm(ctx context.Context) error {
	c.mu.RLock()
	warm := c.initialized
	c.mu.RUnlock()
	if warm {
		return nil
	}
	c.log.Info("warming cache")
	return c.RefreshAll(ctx)
}
