package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

// ProductCache keeps one catalog snapshot per branch partition. Writes replace
// the whole snapshot; reads report absence rather than errors.
type ProductCache struct {
	store  durableStore
	client port.ClientContext
	logger *slog.Logger
	now    func() time.Time

	// held across every snapshot read-modify-write
	mu sync.Mutex
}

func NewProductCache(kv port.KeyValueStore, client port.ClientContext, logger *slog.Logger) *ProductCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductCache{
		store:  durableStore{kv: kv, logger: logger},
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// ResolveBranch turns a branch ref into a partition id ("" is the unscoped
// partition).
func (c *ProductCache) ResolveBranch(branch domain.BranchRef) string {
	active := ""
	if c.client != nil {
		active = c.client.ActiveBranchID()
	}
	return branch.Resolve(active)
}

func (c *ProductCache) CacheProducts(ctx context.Context, products []domain.Product, branch domain.BranchRef) {
	branchID := c.ResolveBranch(branch)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(ctx, branchID, products)
}

func (c *ProductCache) LoadCachedProducts(ctx context.Context, branch domain.BranchRef) ([]domain.Product, bool) {
	snapshot, ok := c.LoadSnapshot(ctx, branch)
	if !ok {
		return nil, false
	}
	return snapshot.Products, true
}

func (c *ProductCache) LoadSnapshot(ctx context.Context, branch domain.BranchRef) (domain.ProductSnapshot, bool) {
	return c.read(ctx, c.ResolveBranch(branch))
}

func (c *ProductCache) ClearCachedProducts(ctx context.Context, branch domain.BranchRef) {
	branchID := c.ResolveBranch(branch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.remove(ctx, ProductsKey(branchID)); err != nil {
		c.logger.Warn("product cache clear failed", "branch", branchID, "error", err)
	}
}

// update applies fn to the stored snapshot of branchID and writes the result
// back. It reports false, without calling fn, when there is no snapshot.
func (c *ProductCache) update(ctx context.Context, branchID string, fn func([]domain.Product) []domain.Product) ([]domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, ok := c.read(ctx, branchID)
	if !ok {
		return nil, false
	}
	products := fn(snapshot.Products)
	c.write(ctx, branchID, products)
	return products, true
}

func (c *ProductCache) read(ctx context.Context, branchID string) (domain.ProductSnapshot, bool) {
	var snapshot domain.ProductSnapshot
	found, err := c.store.load(ctx, ProductsKey(branchID), &snapshot)
	if err != nil {
		c.logger.Warn("product cache read failed", "branch", branchID, "error", err)
		return domain.ProductSnapshot{}, false
	}
	if !found {
		return domain.ProductSnapshot{}, false
	}
	if snapshot.Products == nil {
		snapshot.Products = []domain.Product{}
	}
	return snapshot, true
}

func (c *ProductCache) write(ctx context.Context, branchID string, products []domain.Product) {
	if products == nil {
		products = []domain.Product{}
	}
	snapshot := domain.ProductSnapshot{
		BranchID: branchID,
		CachedAt: c.now().UTC(),
		Products: products,
	}
	if err := c.store.save(ctx, ProductsKey(branchID), snapshot); err != nil {
		c.logger.Warn("product cache write failed", "branch", branchID, "error", err)
	}
}
