package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/tillsync/internal/order"
)

// SaveQueue replaces the persisted offline queue.
func (s *Store) SaveQueue(ctx context.Context, queue []order.QueuedOrder) error {
	if queue == nil {
		queue = []order.QueuedOrder{}
	}
	data, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	if err := s.put(ctx, keyQueue, string(data)); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

// LoadQueue returns the persisted offline queue in enqueue order.
//
// Only database failures are returned as errors. A missing or unparseable
// list yields an empty queue; malformed records are dropped individually.
func (s *Store) LoadQueue(ctx context.Context) ([]order.QueuedOrder, error) {
	raws, err := s.loadRaw(ctx, keyQueue)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	queue := make([]order.QueuedOrder, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		q, err := decodeQueuedOrder(raw)
		if err != nil {
			slog.Warn("dropping malformed queued order", "index", i, "error", err)
			continue
		}
		if seen[q.TempID] {
			slog.Warn("dropping duplicate queued order", "index", i, "temp_id", q.TempID)
			continue
		}
		seen[q.TempID] = true
		queue = append(queue, q)
	}
	return queue, nil
}

// SaveHistory replaces the persisted order history.
func (s *Store) SaveHistory(ctx context.Context, history []order.HistoryEntry) error {
	if history == nil {
		history = []order.HistoryEntry{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := s.put(ctx, keyHistory, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// LoadHistory returns the persisted order history, newest first.
// Malformed entries are dropped the same way LoadQueue drops records.
func (s *Store) LoadHistory(ctx context.Context) ([]order.HistoryEntry, error) {
	raws, err := s.loadRaw(ctx, keyHistory)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]order.HistoryEntry, 0, len(raws))
	for i, raw := range raws {
		e, err := decodeHistoryEntry(raw)
		if err != nil {
			slog.Warn("dropping malformed history entry", "index", i, "error", err)
			continue
		}
		history = append(history, e)
	}
	return history, nil
}

// loadRaw splits the list stored under key into raw records.
// A value that is not a JSON array is treated as empty.
func (s *Store) loadRaw(ctx context.Context, key string) ([]json.RawMessage, error) {
	value, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raws); err != nil {
		slog.Warn("ignoring unreadable persisted list", "key", key, "error", err)
		return nil, nil
	}
	return raws, nil
}
