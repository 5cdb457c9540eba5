package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCatalogTTL is how long a synced model list stays fresh.
const DefaultCatalogTTL = 10 * time.Minute

// ModelInfo describes one embedding model a backend can serve.
type ModelInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

// ModelLister is implemented by every provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Catalog caches the model list of a lister. The list is resynced on read
// once it is older than the TTL.
type Catalog struct {
	lister ModelLister
	ttl    time.Duration
	now    func() time.Time

	mu         sync.Mutex
	models     []ModelInfo
	lastSynced time.Time
}

// NewCatalog returns an empty catalog. A non-positive ttl selects DefaultCatalogTTL.
func NewCatalog(lister ModelLister, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{lister: lister, ttl: ttl, now: time.Now}
}

// Models returns the cached list, resyncing first when it is stale. If a
// resync fails and an older list exists, the older list is returned with
// the error.
func (c *Catalog) Models(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastSynced.IsZero() && c.now().Sub(c.lastSynced) <= c.ttl {
		return c.snapshot(), nil
	}

	models, err := c.lister.ListModels(ctx)
	if err != nil {
		err = fmt.Errorf("sync model catalog: %w", err)
		if c.models != nil {
			return c.snapshot(), err
		}
		return nil, err
	}
	c.models = models
	c.lastSynced = c.now()
	return c.snapshot(), nil
}

// Lookup returns the named model, syncing when stale.
func (c *Catalog) Lookup(ctx context.Context, name string) (ModelInfo, bool, error) {
	models, err := c.Models(ctx)
	for _, m := range models {
		if m.Name == name {
			return m, true, err
		}
	}
	return ModelInfo{}, false, err
}

// LastSynced returns the time of the last successful sync.
func (c *Catalog) LastSynced() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSynced
}

// Invalidate forces the next read to resync.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.lastSynced = time.Time{}
	c.mu.Unlock()
}

func (c *Catalog) snapshot() []ModelInfo {
	out := make([]ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}
