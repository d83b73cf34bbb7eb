package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/tillsync/internal/order"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// putRaw stores an arbitrary value under a list key to plant corrupt state.
func putRaw(t *testing.T, s *Store, key, value string) {
	t.Helper()
	if err := s.put(context.Background(), key, value); err != nil {
		t.Fatalf("put(%s) failed: %v", key, err)
	}
}

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func createTestQueuedOrder(tempID string, total float64) order.QueuedOrder {
	return order.QueuedOrder{
		TempID: tempID,
		Payload: order.Payload{
			Draft: order.Draft{
				Items:         []order.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: total, LineTotal: total}},
				PaymentMethod: order.MethodCash,
				Total:         total,
				Metadata:      map[string]any{order.IdempotencyKeyField: tempID},
			},
			Offline: true,
		},
		CreatedAt: testTime,
	}
}

func createTestHistoryEntry(id string) order.HistoryEntry {
	return order.HistoryEntry{
		ID:            id,
		TempID:        id,
		Status:        order.StatusQueued,
		PaymentMethod: order.MethodCash,
		Total:         10,
		CreatedAt:     testTime,
		Offline:       true,
	}
}
