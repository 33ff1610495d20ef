package service

import (
	"context"
	"fmt"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
)

type CheckoutResult struct {
	Confirmed []domain.Sale        `json:"confirmed"`
	Queued    []domain.OutboxEntry `json:"queued"`
	Err       error                `json:"-"`
}

// Checkout is the till's entry point for a finished cart. Lines the remote
// service does not confirm land in the outbox and are projected onto the
// cached catalog so the till keeps showing sellable stock.
type Checkout struct {
	engine *SyncEngine
}

func NewCheckout(engine *SyncEngine) *Checkout {
	return &Checkout{engine: engine}
}

func (c *Checkout) SubmitSales(ctx context.Context, sales []domain.SalePayload, branch domain.BranchRef) (CheckoutResult, error) {
	if len(sales) == 0 {
		return CheckoutResult{}, ErrNoSales
	}

	e := c.engine
	lines := make([]domain.SalePayload, len(sales))
	for i, sale := range sales {
		if sale.ClientSaleID == "" {
			sale.ClientSaleID = e.outbox.newID()
		}
		lines[i] = sale
	}
	branchID := e.cache.ResolveBranch(branch)

	if !e.client.IsOnline() {
		result := c.queue(ctx, lines, lines, branchID)
		result.Err = ErrOffline
		return result, nil
	}

	e.passMu.Lock()
	defer e.passMu.Unlock()

	// Older queued sales replay first; new lines never jump the queue.
	if e.outbox.GetSalesOutboxCount(ctx) > 0 {
		if pass := e.drainLocked(ctx); pass.Remaining > 0 {
			result := c.queue(ctx, lines, lines, branchID)
			result.Err = pass.Err
			return result, nil
		}
	}

	var result CheckoutResult
	for i, line := range lines {
		sale, err := e.api.CreateSaleForBranch(ctx, line, branchID)
		if err != nil {
			e.observer.SubmissionFailed()
			e.logger.Warn("sale submission failed, queueing remaining lines",
				"client_sale_id", line.ClientSaleID, "queued", len(lines)-i, "error", err)

			// Confirmed lines are not in the cached stock yet either.
			queued := c.queue(ctx, lines[i:], lines, branchID)
			queued.Confirmed = result.Confirmed
			queued.Err = fmt.Errorf("submit sale %s: %w", line.ClientSaleID, err)
			return queued, nil
		}
		e.observer.SubmissionSucceeded()
		result.Confirmed = append(result.Confirmed, sale)
	}

	if err := e.Reload(ctx); err != nil {
		e.logger.Warn("reload after checkout failed", "error", err)
	}
	e.setOfflineNotice(false)
	return result, nil
}

func (c *Checkout) queue(ctx context.Context, pending, projected []domain.SalePayload, branchID string) CheckoutResult {
	e := c.engine
	entries := e.outbox.EnqueueSales(ctx, pending, domain.Branch(branchID))
	e.projector.ApplyLocalSaleToCachedProducts(ctx, projected, domain.Branch(branchID))
	e.setOfflineNotice(true)
	return CheckoutResult{Queued: entries}
}
