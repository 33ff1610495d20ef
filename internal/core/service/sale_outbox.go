package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

// SaleOutbox is the durable queue of sales the remote service has not
// confirmed yet. It is the only source for pending counts.
type SaleOutbox struct {
	store  durableStore
	client port.ClientContext
	bus    *event.Bus
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// every mutation rewrites the whole queue under mu
	mu sync.Mutex
}

func NewSaleOutbox(kv port.KeyValueStore, client port.ClientContext, bus *event.Bus, logger *slog.Logger) *SaleOutbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaleOutbox{
		store:  durableStore{kv: kv, logger: logger},
		client: client,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// EnqueueSales appends one entry per sale, all stamped with the same
// CreatedAt so a checkout replays as a unit. Persistence is best-effort.
func (o *SaleOutbox) EnqueueSales(ctx context.Context, sales []domain.SalePayload, branch domain.BranchRef) []domain.OutboxEntry {
	entries, err := o.enqueue(ctx, sales, branch)
	if err != nil {
		o.logger.Error("outbox write failed, sales are not queued durably", "count", len(sales), "error", err)
	}
	return entries
}

func (o *SaleOutbox) enqueue(ctx context.Context, sales []domain.SalePayload, branch domain.BranchRef) ([]domain.OutboxEntry, error) {
	if len(sales) == 0 {
		return []domain.OutboxEntry{}, nil
	}

	active := ""
	if o.client != nil {
		active = o.client.ActiveBranchID()
	}
	branchID := branch.Resolve(active)
	createdAt := o.now().UTC()

	entries := make([]domain.OutboxEntry, 0, len(sales))
	for _, sale := range sales {
		if sale.ClientSaleID == "" {
			sale.ClientSaleID = o.newID()
		}
		entries = append(entries, domain.OutboxEntry{
			ID:        o.newID(),
			BranchID:  branchID,
			CreatedAt: createdAt,
			Sale:      sale,
		})
	}

	o.mu.Lock()
	queue, err := o.read(ctx)
	if err != nil {
		// never overwrite a queue that could not be read
		o.mu.Unlock()
		return entries, err
	}
	queue = append(queue, entries...)
	err = o.store.save(ctx, outboxKey, queue)
	o.mu.Unlock()

	o.bus.Emit(event.TopicOutboxChanged, nil)
	return entries, err
}

// GetSalesOutbox returns the queue in storage order. Use ReplayOrder for
// submission order.
func (o *SaleOutbox) GetSalesOutbox(ctx context.Context) []domain.OutboxEntry {
	o.mu.Lock()
	queue, err := o.read(ctx)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("outbox read failed", "error", err)
	}
	return queue
}

func (o *SaleOutbox) GetSalesOutboxCount(ctx context.Context) int {
	return len(o.GetSalesOutbox(ctx))
}

// RemoveOutboxItem drops the entry with id. Unknown ids are ignored.
func (o *SaleOutbox) RemoveOutboxItem(ctx context.Context, id string) {
	o.mu.Lock()
	queue, err := o.read(ctx)
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("outbox remove skipped, queue unreadable", "id", id, "error", err)
		return
	}
	kept := queue[:0]
	for _, entry := range queue {
		if entry.ID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(queue) {
		o.mu.Unlock()
		return
	}
	err = o.store.save(ctx, outboxKey, kept)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("outbox remove failed", "id", id, "error", err)
	}
	o.bus.Emit(event.TopicOutboxChanged, nil)
}

// ClearSalesOutbox drops every queued sale. Administrative reset only.
func (o *SaleOutbox) ClearSalesOutbox(ctx context.Context) {
	o.mu.Lock()
	err := o.store.remove(ctx, outboxKey)
	o.mu.Unlock()

	if err != nil {
		o.logger.Warn("outbox clear failed", "error", err)
	}
	o.bus.Emit(event.TopicOutboxChanged, nil)
}

// read returns the stored queue. A backend failure is returned as an error
// with an empty queue; malformed data reads as empty.
func (o *SaleOutbox) read(ctx context.Context) ([]domain.OutboxEntry, error) {
	var queue []domain.OutboxEntry
	found, err := o.store.load(ctx, outboxKey, &queue)
	if err != nil {
		return []domain.OutboxEntry{}, err
	}
	if !found || queue == nil {
		return []domain.OutboxEntry{}, nil
	}
	return queue, nil
}

// ReplayOrder returns a copy of entries sorted by CreatedAt. Entries of one
// batch share a timestamp and keep their storage order.
func ReplayOrder(entries []domain.OutboxEntry) []domain.OutboxEntry {
	ordered := append([]domain.OutboxEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}
