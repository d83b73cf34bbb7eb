// Package history keeps the operator-visible list of recent sales and owns
// the one reducer that applies incoming status to it.
//
// Both reconciliation channels (push and poll) and the submission path write
// through Book, so there is a single merge code path. Every mutation builds a
// new slice and swaps it in; readers always receive a copy.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/status"
)

// DefaultLimit is the number of recent sales retained.
const DefaultLimit = 20

// Persister mirrors the history list to durable storage.
// Implemented by *store.Store.
type Persister interface {
	SaveHistory(ctx context.Context, history []order.HistoryEntry) error
}

// Update is a partial status change for one sale. Nil fields are left
// untouched on the matching entry.
type Update struct {
	Key           string
	Status        *string
	PaymentStatus *string
	PaymentURL    *string
	Note          *string
}

// Empty reports whether the update carries no fields to apply.
func (u Update) Empty() bool {
	return u.Status == nil && u.PaymentStatus == nil && u.PaymentURL == nil && u.Note == nil
}

// Book holds the recent-order list, newest first.
type Book struct {
	mu       sync.Mutex
	entries  []order.HistoryEntry
	limit    int
	persist  Persister
	now      func() time.Time
	onChange func()
}

// Option configures a Book.
type Option func(*Book)

// WithLimit overrides DefaultLimit.
func WithLimit(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithClock sets the time source used for syncedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// WithOnChange registers a callback run after every committed mutation.
// It is called without the Book lock held.
func WithOnChange(fn func()) Option {
	return func(b *Book) { b.onChange = fn }
}

// New creates a Book seeded with entries (newest first), typically the list
// loaded from the store. persist may be nil.
func New(entries []order.HistoryEntry, persist Persister, opts ...Option) *Book {
	b := &Book{
		limit:   DefaultLimit,
		persist: persist,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.entries = capped(clone(entries), b.limit)
	return b
}

// Entries returns a copy of the list, newest first.
func (b *Book) Entries() []order.HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.entries)
}

// Find returns the entry matching key by temp id or reference.
func (b *Book) Find(key string) (order.HistoryEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := indexOf(b.entries, key); i >= 0 {
		return b.entries[i], true
	}
	return order.HistoryEntry{}, false
}

// Upsert replaces the entry matching e's temp id or reference, or inserts e
// as the newest entry. A replaced entry keeps its position and createdAt.
func (b *Book) Upsert(ctx context.Context, e order.HistoryEntry) {
	b.commit(ctx, func(entries []order.HistoryEntry) []order.HistoryEntry {
		i := indexOf(entries, e.TempID)
		if i < 0 {
			i = indexOf(entries, e.Reference)
		}
		if i < 0 {
			return append([]order.HistoryEntry{e}, entries...)
		}
		if !entries[i].CreatedAt.IsZero() {
			e.CreatedAt = entries[i].CreatedAt
		}
		// A reference is assigned at most once per sale.
		if prev := entries[i].Reference; prev != "" {
			if e.Reference != "" && e.Reference != prev {
				slog.Warn("ignoring second reference for sale", "temp_id", e.TempID, "reference", prev, "new_reference", e.Reference)
			}
			e.Reference = prev
			e.ID = prev
		}
		entries[i] = e
		return entries
	})
}

// Apply merges a partial status update into the matching entry. It reports
// whether an entry matched. Present fields overwrite; absent fields are
// untouched, so applying the same update twice is a no-op the second time.
func (b *Book) Apply(ctx context.Context, u Update) bool {
	if u.Key == "" || u.Empty() {
		return false
	}
	matched := false
	b.commit(ctx, func(entries []order.HistoryEntry) []order.HistoryEntry {
		i := indexOf(entries, u.Key)
		if i < 0 {
			return nil
		}
		matched = true
		e := entries[i]
		if u.Status != nil {
			e.Status = *u.Status
		}
		if u.PaymentStatus != nil {
			e.PaymentStatus = *u.PaymentStatus
		}
		if u.PaymentURL != nil {
			e.PaymentURL = *u.PaymentURL
		}
		if u.Note != nil {
			e.Note = *u.Note
		}
		if e == entries[i] {
			return nil
		}
		synced := b.now()
		e.SyncedAt = &synced
		entries[i] = e
		return entries
	})
	if !matched {
		slog.Debug("status update matched no history entry", "key", u.Key)
	}
	return matched
}

// Monitored returns the entries that still need status reconciliation.
func (b *Book) Monitored() []order.HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []order.HistoryEntry
	for _, e := range b.entries {
		if status.NeedsMonitoring(e.Status, e.PaymentStatus, e.Offline) {
			out = append(out, e)
		}
	}
	return out
}

// commit runs mutate on a private copy of the list and swaps the result in.
// mutate returns nil to signal no change. Persistence is best-effort.
func (b *Book) commit(ctx context.Context, mutate func([]order.HistoryEntry) []order.HistoryEntry) {
	b.mu.Lock()
	next := mutate(clone(b.entries))
	if next == nil {
		b.mu.Unlock()
		return
	}
	next = capped(next, b.limit)
	b.entries = next
	snapshot := clone(next)
	if b.persist != nil {
		// Saved under the lock so concurrent commits reach the store in order.
		if err := b.persist.SaveHistory(context.WithoutCancel(ctx), snapshot); err != nil {
			slog.Error("failed to persist order history", "error", err)
		}
	}
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange()
	}
}

func indexOf(entries []order.HistoryEntry, key string) int {
	if key == "" {
		return -1
	}
	for i, e := range entries {
		if e.Matches(key) {
			return i
		}
	}
	return -1
}

func capped(entries []order.HistoryEntry, limit int) []order.HistoryEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func clone(entries []order.HistoryEntry) []order.HistoryEntry {
	out := make([]order.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
