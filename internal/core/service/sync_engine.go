package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

var (
	ErrOffline = errors.New("client is offline")
	ErrNoSales = errors.New("no sales provided")
)

const defaultTriggerTimeout = 30 * time.Second

// SyncResult describes one drain pass.
type SyncResult struct {
	Skipped   bool // offline pre-check short-circuited the pass
	Attempted int
	Confirmed int
	Remaining int
	Err       error // the submission failure that stopped the pass
}

// SyncObserver receives per-submission and per-pass outcomes.
type SyncObserver interface {
	SubmissionSucceeded()
	SubmissionFailed()
	PassCompleted(SyncResult)
}

type noopObserver struct{}

func (noopObserver) SubmissionSucceeded()     {}
func (noopObserver) SubmissionFailed()        {}
func (noopObserver) PassCompleted(SyncResult) {}

type EngineOptions struct {
	Logger   *slog.Logger
	Observer SyncObserver

	// MinTriggerInterval throttles passes started by connectivity events.
	// Zero disables throttling. Manual syncs are never throttled.
	MinTriggerInterval time.Duration

	// TriggerTimeout bounds a pass started by an event.
	TriggerTimeout time.Duration
}

// Status is what the till shows about offline state.
type Status struct {
	Online        bool      `json:"online"`
	ActiveBranch  string    `json:"active_branch,omitempty"`
	Pending       int       `json:"pending"`
	Notice        string    `json:"notice,omitempty"`
	OfflineNotice bool      `json:"offline_notice"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// SyncEngine drains the outbox against the remote service, oldest first,
// stopping at the first failure. Passes never overlap.
type SyncEngine struct {
	api       port.SaleAPI
	outbox    *SaleOutbox
	cache     *ProductCache
	projector *StockProjector
	client    port.ClientContext
	bus       *event.Bus
	logger    *slog.Logger
	observer  SyncObserver
	limiter   *rate.Limiter
	timeout   time.Duration

	passMu sync.Mutex

	mu            sync.RWMutex
	offlineNotice bool
	lastSyncAt    time.Time
	lastErr       error
	recentSales   []domain.Sale
	unsubscribe   []func()
}

// NewSyncEngine wires the engine and subscribes it to connectivity and
// branch transitions on bus.
func NewSyncEngine(api port.SaleAPI, outbox *SaleOutbox, cache *ProductCache, client port.ClientContext, bus *event.Bus, opts EngineOptions) *SyncEngine {
	e := &SyncEngine{
		api:       api,
		outbox:    outbox,
		cache:     cache,
		projector: NewStockProjector(cache),
		client:    client,
		bus:       bus,
		logger:    opts.Logger,
		observer:  opts.Observer,
		timeout:   opts.TriggerTimeout,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = noopObserver{}
	}
	if e.timeout <= 0 {
		e.timeout = defaultTriggerTimeout
	}
	if opts.MinTriggerInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(opts.MinTriggerInterval), 1)
	}

	e.unsubscribe = append(e.unsubscribe,
		bus.Subscribe(event.TopicOnline, e.onOnline),
		bus.Subscribe(event.TopicOffline, e.onOffline),
		bus.Subscribe(event.TopicBranchChanged, e.onBranchChanged),
	)
	return e
}

// Start runs the eager pass that picks up sales queued in an earlier session.
func (e *SyncEngine) Start(ctx context.Context) SyncResult {
	return e.SyncOutboxOnce(ctx)
}

func (e *SyncEngine) Close() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

// SyncNow is the manual "sync now" action.
func (e *SyncEngine) SyncNow(ctx context.Context) SyncResult {
	return e.SyncOutboxOnce(ctx)
}

func (e *SyncEngine) SyncOutboxOnce(ctx context.Context) SyncResult {
	if !e.client.IsOnline() {
		return SyncResult{Skipped: true, Remaining: e.outbox.GetSalesOutboxCount(ctx)}
	}

	e.passMu.Lock()
	defer e.passMu.Unlock()
	return e.drainLocked(ctx)
}

// drainLocked runs one pass. The caller holds passMu.
func (e *SyncEngine) drainLocked(ctx context.Context) SyncResult {
	var result SyncResult

	for _, entry := range ReplayOrder(e.outbox.GetSalesOutbox(ctx)) {
		result.Attempted++
		if _, err := e.api.CreateSaleForBranch(ctx, entry.Sale, entry.BranchID); err != nil {
			result.Err = fmt.Errorf("submit outbox entry %s: %w", entry.ID, err)
			e.observer.SubmissionFailed()
			e.logger.Warn("outbox submission failed, pass stopped",
				"id", entry.ID, "client_sale_id", entry.Sale.ClientSaleID, "error", err)
			break
		}

		e.outbox.RemoveOutboxItem(ctx, entry.ID)
		result.Confirmed++
		e.observer.SubmissionSucceeded()
		e.logger.Info("outbox entry confirmed", "id", entry.ID, "branch", entry.BranchID)
	}
	result.Remaining = e.outbox.GetSalesOutboxCount(ctx)

	if result.Confirmed > 0 {
		if err := e.Reload(ctx); err != nil {
			e.logger.Warn("reload after sync failed", "error", err)
		}
		e.setOfflineNotice(false)
	}

	e.mu.Lock()
	e.lastSyncAt = time.Now()
	e.lastErr = result.Err
	e.mu.Unlock()

	e.observer.PassCompleted(result)
	if result.Attempted > 0 {
		e.logger.Info("drain pass finished",
			"attempted", result.Attempted, "confirmed", result.Confirmed, "remaining", result.Remaining)
	}
	return result
}

// Reload replaces the active branch's cached catalog and recent sales with
// server state. Sales still queued for that branch are projected again on the
// fresh catalog so the optimistic view survives the refresh.
func (e *SyncEngine) Reload(ctx context.Context) error {
	return e.reloadBranch(ctx, e.client.ActiveBranchID())
}

func (e *SyncEngine) reloadBranch(ctx context.Context, branchID string) error {
	var errs []error

	products, err := e.api.FetchProducts(ctx, branchID)
	if err != nil {
		errs = append(errs, fmt.Errorf("fetch products: %w", err))
	} else {
		e.cache.CacheProducts(ctx, products, domain.Branch(branchID))
		if pending := pendingSalesFor(e.outbox.GetSalesOutbox(ctx), branchID); len(pending) > 0 {
			e.projector.ApplyLocalSaleToCachedProducts(ctx, pending, domain.Branch(branchID))
		}
	}

	sales, err := e.api.FetchSales(ctx, branchID)
	if err != nil {
		errs = append(errs, fmt.Errorf("fetch sales: %w", err))
	} else {
		e.mu.Lock()
		e.recentSales = sales
		e.mu.Unlock()
		e.bus.Emit(event.TopicSalesRefreshed, len(sales))
	}

	return errors.Join(errs...)
}

func (e *SyncEngine) RecentSales() []domain.Sale {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Sale(nil), e.recentSales...)
}

func (e *SyncEngine) Status(ctx context.Context) Status {
	pending := e.outbox.GetSalesOutboxCount(ctx)

	e.mu.RLock()
	defer e.mu.RUnlock()

	status := Status{
		Online:        e.client.IsOnline(),
		ActiveBranch:  e.client.ActiveBranchID(),
		Pending:       pending,
		Notice:        PendingNotice(pending),
		OfflineNotice: e.offlineNotice,
		LastSyncAt:    e.lastSyncAt,
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	return status
}

// PendingNotice is the persistent affordance shown while sales are queued.
func PendingNotice(pending int) string {
	switch pending {
	case 0:
		return ""
	case 1:
		return "1 sale pending sync"
	default:
		return fmt.Sprintf("%d sales pending sync", pending)
	}
}

func (e *SyncEngine) setOfflineNotice(raised bool) {
	e.mu.Lock()
	e.offlineNotice = raised
	e.mu.Unlock()
}

func (e *SyncEngine) onOnline(event.Event) {
	if e.limiter != nil && !e.limiter.Allow() {
		e.logger.Info("sync trigger throttled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	e.SyncOutboxOnce(ctx)
}

func (e *SyncEngine) onOffline(event.Event) {
	if e.outbox.GetSalesOutboxCount(context.Background()) > 0 {
		e.setOfflineNotice(true)
	}
}

func (e *SyncEngine) onBranchChanged(ev event.Event) {
	if !e.client.IsOnline() {
		return
	}
	branchID := e.client.ActiveBranchID()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.reloadBranch(ctx, branchID); err != nil {
		e.logger.Warn("refresh after branch change failed", "branch", branchID, "error", err)
	}
}

func pendingSalesFor(entries []domain.OutboxEntry, branchID string) []domain.SalePayload {
	var sales []domain.SalePayload
	for _, entry := range ReplayOrder(entries) {
		if entry.BranchID == branchID {
			sales = append(sales, entry.Sale)
		}
	}
	return sales
}
