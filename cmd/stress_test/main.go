package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gelchrist-coder/gel-invent/internal/adapter/api"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/api/apitest"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/session"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/storage"
	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/core/service"
)

const (
	branchID      = "1"
	productID     = 1
	initialStock  = 20
	totalCheckout = 50
	token         = "stress-token"
)

func main() {
	ctx := context.Background()

	// Fake backend
	remote := apitest.NewServer(token)
	defer remote.Close()
	remote.SetProducts(branchID, []domain.Product{{
		ID: productID, SKU: "STRESS-1", Name: "Stress item", CurrentStock: domain.QuantityFromInt(initialStock),
	}})

	// Durable store in a scratch sqlite file
	dir, err := os.MkdirTemp("", "pos-stress-*")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	db, err := storage.OpenSQL(ctx, storage.DialectSQLite, filepath.Join(dir, "outbox.db"))
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()

	kv, err := storage.NewSQLAdapter(db, storage.DialectSQLite)
	if err != nil {
		log.Fatalf("failed to create adapter: %v", err)
	}
	if err := kv.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	// Wire the terminal, starting online to prime the catalog
	bus := event.NewBus(nil)
	state := session.NewState(bus, branchID, true)
	client := api.NewClient(remote.URL, token, 5*time.Second)
	cache := service.NewProductCache(kv, state, nil)
	outbox := service.NewSaleOutbox(kv, state, bus, nil)
	engine := service.NewSyncEngine(client, outbox, cache, state, bus, service.EngineOptions{})
	defer engine.Close()
	checkout := service.NewCheckout(engine)

	if err := engine.Reload(ctx); err != nil {
		log.Fatalf("failed to prime catalog: %v", err)
	}
	state.SetOnline(false)

	// Concurrent offline checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalCheckout; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sale := domain.SalePayload{
				ProductID:     productID,
				Quantity:      domain.QuantityFromInt(1),
				SaleUnitType:  domain.DefaultSaleUnitType,
				PaymentMethod: domain.DefaultPaymentMethod,
				ClientSaleID:  fmt.Sprintf("stress-%d", n),
			}
			if _, err := checkout.SubmitSales(ctx, []domain.SalePayload{sale}, domain.ActiveBranch()); err != nil {
				log.Printf("checkout %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	queued := outbox.GetSalesOutboxCount(ctx)
	products, _ := cache.LoadCachedProducts(ctx, domain.ActiveBranch())
	projected := "missing"
	if len(products) > 0 {
		projected = products[0].CurrentStock.String()
	}

	// Reconnect and drain
	state.SetOnline(true)
	elapsed := time.Since(start)

	accepted := len(remote.Sales(branchID))
	remaining := outbox.GetSalesOutboxCount(ctx)

	// Retrying every entry must not create duplicates
	for _, id := range []int{0, 1, 2} {
		client.CreateSaleForBranch(ctx, domain.SalePayload{
			ProductID: productID, Quantity: domain.QuantityFromInt(1), ClientSaleID: fmt.Sprintf("stress-%d", id),
		}, branchID)
	}
	afterRetry := len(remote.Sales(branchID))

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:     %d\n", initialStock)
	fmt.Printf("Offline Checkouts: %d\n", totalCheckout)
	fmt.Printf("Queued Offline:    %d\n", queued)
	fmt.Printf("Projected Stock:   %s\n", projected)
	fmt.Printf("Accepted by Server:%d\n", accepted)
	fmt.Printf("Remaining Queued:  %d\n", remaining)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if queued == totalCheckout {
		fmt.Printf("PASS: All %d offline checkouts queued\n", totalCheckout)
	} else {
		fmt.Printf("FAIL: Expected %d queued, got %d\n", totalCheckout, queued)
	}

	if projected == "0" {
		fmt.Println("PASS: Projected stock clamped at 0")
	} else {
		fmt.Printf("FAIL: Expected projected stock 0, got %s\n", projected)
	}

	if accepted == totalCheckout && remaining == 0 {
		fmt.Printf("PASS: Reconnect delivered all %d sales\n", totalCheckout)
	} else {
		fmt.Printf("FAIL: Expected %d delivered and 0 queued, got %d/%d\n", totalCheckout, accepted, remaining)
	}

	if afterRetry == accepted {
		fmt.Println("PASS: Retries de-duplicated by client_sale_id")
	} else {
		fmt.Printf("FAIL: Retries created %d duplicate sales\n", afterRetry-accepted)
	}
}
