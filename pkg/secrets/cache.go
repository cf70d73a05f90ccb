package secrets

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache maps account ids to secret bundles with no expiry. Entries leave the
// cache only through Invalidate.
//
// A global epoch advances on every invalidation. Fills are de-duplicated per
// (account, epoch), so a lookup that begins after an invalidation never joins a
// fill started before it. A fill remembers the epoch at which it queried the
// store and only inserts its result when the account was not invalidated since.
// Invalidation marks are kept only while fills for the account are in flight.
type Cache struct {
	store  Store
	logger *slog.Logger

	mu          sync.RWMutex
	entries     map[string]Bundle
	epoch       uint64
	invalidated map[string]uint64
	inflight    map[string]int

	fills singleflight.Group
}

func NewCache(logger *slog.Logger, store Store) *Cache {
	return &Cache{
		store:       store,
		logger:      logger.With("module", "secret_cache"),
		entries:     make(map[string]Bundle),
		invalidated: make(map[string]uint64),
		inflight:    make(map[string]int),
	}
}

// Get returns a copy of the account's secret bundle, filling the cache from the
// store on a miss. No lock is held while the store is queried.
func (c *Cache) Get(ctx context.Context, accountID string) (Bundle, error) {
	c.mu.RLock()
	bundle, ok := c.entries[accountID]
	epoch := c.epoch
	c.mu.RUnlock()

	if ok {
		return bundle.Clone(), nil
	}

	key := accountID + "\x00" + strconv.FormatUint(epoch, 10)

	result := c.fills.DoChan(key, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), accountID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}

		filled, _ := res.Val.(Bundle)

		return filled.Clone(), nil
	}
}

func (c *Cache) fill(ctx context.Context, accountID string) (Bundle, error) {
	c.logger.DebugContext(ctx, "Secret cache miss", "account_id", accountID)

	c.mu.Lock()
	started := c.epoch
	c.inflight[accountID]++
	c.mu.Unlock()

	fetched, err := c.store.Fetch(ctx, accountID)
	if err == nil {
		fetched = fetched.Clone()
	}

	c.mu.Lock()
	if err == nil && started >= c.invalidated[accountID] {
		c.entries[accountID] = fetched
	}

	c.inflight[accountID]--
	if c.inflight[accountID] == 0 {
		delete(c.inflight, accountID)
		delete(c.invalidated, accountID)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch account secrets", "account_id", accountID, "error", err)

		return nil, err
	}

	return fetched, nil
}

// Invalidate drops the cached bundle of the account. Fills already in flight
// for the account are discarded when they complete.
func (c *Cache) Invalidate(accountID string) {
	c.mu.Lock()
	delete(c.entries, accountID)

	c.epoch++
	if c.inflight[accountID] > 0 {
		c.invalidated[accountID] = c.epoch
	}
	c.mu.Unlock()

	c.logger.Debug("Secret cache invalidated", "account_id", accountID)
}

// Len returns the number of cached accounts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// tracked returns how many accounts hold invalidation or in-flight bookkeeping.
func (c *Cache) tracked() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.invalidated) + len(c.inflight)
}
