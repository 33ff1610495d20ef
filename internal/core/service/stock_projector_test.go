package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gelchrist-coder/gel-invent/internal/core/domain"
)

func TestProjectStock_ClampsAtZero(t *testing.T) {
	got := ProjectStock([]domain.Product{product(1, 3)}, []domain.SalePayload{saleLine(1, 5, "a")})
	if s := stockOf(t, got, 1); s != "0" {
		t.Errorf("expected stock 0, got %s", s)
	}
}

func TestApplyLocalSale_Sequential(t *testing.T) {
	ctx := context.Background()
	cache := NewProductCache(newMockKV(), &mockClient{branch: "b1"}, discardLogger())
	projector := NewStockProjector(cache)
	cache.CacheProducts(ctx, []domain.Product{product(1, 10), product(2, 4)}, domain.ActiveBranch())

	projector.ApplyLocalSaleToCachedProducts(ctx, []domain.SalePayload{saleLine(1, 2, "a")}, domain.ActiveBranch())
	projector.ApplyLocalSaleToCachedProducts(ctx, []domain.SalePayload{saleLine(1, 3, "b")}, domain.ActiveBranch())

	got, ok := cache.LoadCachedProducts(ctx, domain.ActiveBranch())
	if !ok {
		t.Fatal("expected cached products")
	}
	if s := stockOf(t, got, 1); s != "5" {
		t.Errorf("expected stock 5, got %s", s)
	}
	if s := stockOf(t, got, 2); s != "4" {
		t.Errorf("expected untouched product to keep stock 4, got %s", s)
	}
}

func TestApplyLocalSale_NoSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := newMockKV()
	cache := NewProductCache(kv, &mockClient{}, discardLogger())
	projector := NewStockProjector(cache)

	if _, ok := projector.ApplyLocalSaleToCachedProducts(ctx, []domain.SalePayload{saleLine(1, 1, "a")}, domain.Branch("b1")); ok {
		t.Error("expected absent without a snapshot")
	}
	if kv.writeCount() != 0 {
		t.Error("expected no snapshot to be created")
	}
}

func TestProjectStock_SkipsUnusableLines(t *testing.T) {
	var badStock domain.Product
	if err := json.Unmarshal([]byte(`{"id":2,"sku":"S2","name":"Broken","current_stock":"n/a"}`), &badStock); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	var badQty domain.SalePayload
	if err := json.Unmarshal([]byte(`{"product_id":1,"quantity":"lots","unit_price":"1","total_price":"1"}`), &badQty); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	products := []domain.Product{product(1, 10), badStock}
	got := ProjectStock(products, []domain.SalePayload{
		badQty,
		saleLine(2, 1, "b"),
		saleLine(99, 1, "c"),
	})

	if s := stockOf(t, got, 1); s != "10" {
		t.Errorf("expected invalid quantity to be ignored, got %s", s)
	}
	if s := stockOf(t, got, 2); s != `"n/a"` {
		t.Errorf("expected invalid stock to be kept as is, got %s", s)
	}
	if s := stockOf(t, products, 1); s != "10" {
		t.Error("ProjectStock must not modify its input")
	}
}

func TestProjectStock_DecimalStock(t *testing.T) {
	var p domain.Product
	if err := json.Unmarshal([]byte(`{"id":1,"sku":"S1","name":"Rice","current_stock":"2.5"}`), &p); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	got := ProjectStock([]domain.Product{p}, []domain.SalePayload{saleLine(1, 1, "a")})
	if s := stockOf(t, got, 1); s != "1.5" {
		t.Errorf("expected 1.5, got %s", s)
	}
}
