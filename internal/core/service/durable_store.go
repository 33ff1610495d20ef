package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gelchrist-coder/gel-invent/internal/port"
)

const (
	productsKeyPrefix = "offline_products:"
	outboxKey         = "offline_sales_outbox"
	nonePartition     = "none"
)

// ProductsKey is the durable key holding the snapshot for a branch partition.
func ProductsKey(branchID string) string {
	if branchID == "" {
		branchID = nonePartition
	}
	return productsKeyPrefix + branchID
}

// durableStore makes storage failures explicit internally while callers only
// ever see "value or absent". A nil backend behaves as caching disabled.
type durableStore struct {
	kv     port.KeyValueStore
	logger *slog.Logger
}

// load decodes the value at key into dst. A missing key or a malformed value
// reports found=false with no error; a failing backend reports the error so
// callers never mistake it for an empty value.
func (s durableStore) load(ctx context.Context, key string, dst any) (bool, error) {
	if s.kv == nil {
		return false, nil
	}

	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, port.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("ignoring malformed stored value", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s durableStore) save(ctx context.Context, key string, value any) error {
	if s.kv == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s durableStore) remove(ctx context.Context, key string) error {
	if s.kv == nil {
		return nil
	}
	if err := s.kv.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
