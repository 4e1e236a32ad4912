package caching

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// ClosedGameCache remembers recently closed game ids so late
// broadcasts arriving after teardown are dropped quietly. Eviction
// only costs a log line, so a bounded LRU is enough.
type ClosedGameCache struct {
	closed *lru.Cache
}

func NewClosedGameCache() (*ClosedGameCache, error) {
	size := 100000
	closed, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to initialize closed-game cache")
	}
	return &ClosedGameCache{
		closed: closed,
	}, nil
}

func (c *ClosedGameCache) MarkClosed(gameID string) {
	c.closed.Add(gameID, struct{}{})
}

func (c *ClosedGameCache) WasClosed(gameID string) bool {
	return c.closed.Contains(gameID)
}
