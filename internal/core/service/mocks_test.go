package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

var errBackendDown = errors.New("backend down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock KeyValueStore
type mockKV struct {
	mu     sync.Mutex
	values map[string][]byte
	writes int
}

func newMockKV() *mockKV {
	return &mockKV{values: make(map[string][]byte)}
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, port.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *mockKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockKV) raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *mockKV) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// failingKV rejects every operation.
type failingKV struct{}

func (failingKV) Get(ctx context.Context, key string) ([]byte, error) { return nil, errBackendDown }
func (failingKV) Set(ctx context.Context, key string, value []byte) error { return errBackendDown }
func (failingKV) Remove(ctx context.Context, key string) error { return errBackendDown }

// flakyKV fails the next failGets reads, then behaves like mockKV.
type flakyKV struct {
	*mockKV
	failGets int
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	if f.failGets > 0 {
		f.failGets--
		f.mu.Unlock()
		return nil, errBackendDown
	}
	f.mu.Unlock()
	return f.mockKV.Get(ctx, key)
}

func (f *flakyKV) failNextGet() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGets++
}

// Mock ClientContext
type mockClient struct {
	mu     sync.Mutex
	branch string
	online bool
}

func (c *mockClient) ActiveBranchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branch
}

func (c *mockClient) IsOnline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *mockClient) set(branch string, online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branch = branch
	c.online = online
}

type submission struct {
	sale     domain.SalePayload
	branchID string
}

// Mock SaleAPI
type mockSaleAPI struct {
	mu          sync.Mutex
	submissions []submission
	failIDs     map[string]bool
	nextID      int64
	products    map[string][]domain.Product
	sales       []domain.Sale
	productsErr error
	fetches     int
}

func newMockSaleAPI() *mockSaleAPI {
	return &mockSaleAPI{
		failIDs:  make(map[string]bool),
		products: make(map[string][]domain.Product),
	}
}

func (m *mockSaleAPI) failOn(clientSaleIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range clientSaleIDs {
		m.failIDs[id] = true
	}
}

func (m *mockSaleAPI) heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDs = make(map[string]bool)
}

func (m *mockSaleAPI) CreateSaleForBranch(ctx context.Context, sale domain.SalePayload, branchID string) (domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions = append(m.submissions, submission{sale: sale, branchID: branchID})
	if m.failIDs[sale.ClientSaleID] {
		return domain.Sale{}, fmt.Errorf("create sale %s: %w", sale.ClientSaleID, errBackendDown)
	}
	m.nextID++
	created := domain.Sale{SalePayload: sale, ID: m.nextID}
	m.sales = append(m.sales, created)
	return created, nil
}

func (m *mockSaleAPI) FetchProducts(ctx context.Context, branchID string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	return append([]domain.Product(nil), m.products[branchID]...), nil
}

func (m *mockSaleAPI) FetchSales(ctx context.Context, branchID string) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Sale(nil), m.sales...), nil
}

func (m *mockSaleAPI) submittedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.submissions))
	for _, s := range m.submissions {
		ids = append(ids, s.sale.ClientSaleID)
	}
	return ids
}

func (m *mockSaleAPI) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// fakeClock hands out strictly increasing instants.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordedEvents struct {
	mu     sync.Mutex
	topics []event.Topic
}

func record(bus *event.Bus) *recordedEvents {
	r := &recordedEvents{}
	bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.topics = append(r.topics, e.Topic)
	})
	return r
}

func (r *recordedEvents) count(topic event.Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func product(id int64, stock int64) domain.Product {
	return domain.Product{
		ID:           id,
		SKU:          fmt.Sprintf("SKU-%d", id),
		Name:         fmt.Sprintf("Product %d", id),
		CurrentStock: domain.QuantityFromInt(stock),
	}
}

func saleLine(productID, qty int64, clientSaleID string) domain.SalePayload {
	return domain.SalePayload{
		ProductID:     productID,
		Quantity:      domain.QuantityFromInt(qty),
		SaleUnitType:  domain.DefaultSaleUnitType,
		PaymentMethod: domain.DefaultPaymentMethod,
		ClientSaleID:  clientSaleID,
	}
}

func stockOf(t interface{ Fatalf(string, ...any) }, products []domain.Product, id int64) string {
	for _, p := range products {
		if p.ID == id {
			return p.CurrentStock.String()
		}
	}
	t.Fatalf("product %d not found", id)
	return ""
}
