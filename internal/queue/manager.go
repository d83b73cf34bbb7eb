package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/tillsync/internal/history"
	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/pipeline"
)

// DefaultThrottle is the minimum spacing between automatic drains.
const DefaultThrottle = 5 * time.Second

// DefaultAlertAfter is the attempt count past which a stuck sale is logged
// at WARN on every further failure.
const DefaultAlertAfter = 10

// Persister mirrors the queue to durable storage.
// Implemented by *store.Store.
type Persister interface {
	SaveQueue(ctx context.Context, queue []order.QueuedOrder) error
}

// Submitter sends one sale to the backend and shapes its history entry.
// Implemented by *pipeline.Pipeline.
type Submitter interface {
	Submit(ctx context.Context, p order.Payload) (pipeline.Result, error)
	Entry(base order.HistoryEntry, res pipeline.Result) order.HistoryEntry
}

// Connectivity reports whether the till believes it is online.
// Implemented by *connectivity.Monitor.
type Connectivity interface {
	Online() bool
}

// Outcome is the result of SubmitOrQueue.
type Outcome struct {
	Queued      bool
	TempID      string
	QueuedCount int
	Result      pipeline.Result
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Attempted int    `json:"attempted"`
	Submitted int    `json:"submitted"`
	Remaining int    `json:"remaining"`
	LastError string `json:"lastError,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// Manager owns the in-memory queue.
//
// Thread-safety: all methods are safe for concurrent use. The item slice is
// replaced, never modified in place, and no lock is held across a remote call.
type Manager struct {
	mu    sync.Mutex
	items []order.QueuedOrder

	persist    Persister
	submitter  Submitter
	book       *history.Book
	conn       Connectivity
	limiter    *rate.Limiter
	now        func() time.Time
	alertAfter int
	onChange   func()

	syncing  atomic.Bool
	inflight sync.WaitGroup

	// closeMu orders inflight.Add against Close.
	closeMu sync.Mutex
	closing bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithThrottle sets the minimum spacing between automatic drains.
func WithThrottle(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithClock sets the time source for createdAt stamps and throttling.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithAlertAfter sets the attempt count that triggers WARN escalation.
func WithAlertAfter(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.alertAfter = n
		}
	}
}

// WithOnChange registers a callback run after queue or syncing changes.
func WithOnChange(fn func()) Option {
	return func(m *Manager) { m.onChange = fn }
}

// New creates a Manager seeded with items in enqueue order, typically the
// queue loaded from the store. persist may be nil.
func New(items []order.QueuedOrder, persist Persister, submitter Submitter, book *history.Book, conn Connectivity, opts ...Option) *Manager {
	m := &Manager{
		items:      cloneItems(items),
		persist:    persist,
		submitter:  submitter,
		book:       book,
		conn:       conn,
		limiter:    rate.NewLimiter(rate.Every(DefaultThrottle), 1),
		now:        time.Now,
		alertAfter: DefaultAlertAfter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Items returns a copy of the queue in enqueue order.
func (m *Manager) Items() []order.QueuedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.items)
}

// Len returns the number of queued sales.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Syncing reports whether a drain is in progress.
func (m *Manager) Syncing() bool {
	return m.syncing.Load()
}

// SubmitOrQueue applies the enqueue policy to one validated draft: queue
// immediately when forced offline or offline, otherwise submit now and
// queue only if the submission fails. It never returns a submission error.
func (m *Manager) SubmitOrQueue(ctx context.Context, tempID string, draft order.Draft, forceOffline bool) Outcome {
	if m.begin() {
		defer m.inflight.Done()
	}
	draft = draft.WithIdempotencyKey(tempID)

	if forceOffline || !m.conn.Online() {
		count := m.Enqueue(ctx, tempID, draft, "")
		if !forceOffline {
			m.RequestDrain()
		}
		return Outcome{Queued: true, TempID: tempID, QueuedCount: count}
	}

	base := order.HistoryEntry{
		ID:            tempID,
		TempID:        tempID,
		Status:        order.StatusSubmitting,
		PaymentMethod: draft.PaymentMethod,
		Total:         draft.Total,
		CreatedAt:     m.now(),
	}
	m.book.Upsert(ctx, base)

	res, err := m.submitter.Submit(ctx, order.Payload{Draft: draft})
	if err != nil {
		slog.Warn("order submission failed, queueing sale", "temp_id", tempID, "error", err)
		// The failed attempt counts as this window's automatic drain.
		m.limiter.AllowN(m.now(), 1)
		count := m.Enqueue(ctx, tempID, draft, err.Error())
		m.RequestDrain()
		return Outcome{Queued: true, TempID: tempID, QueuedCount: count}
	}

	m.book.Upsert(ctx, m.submitter.Entry(base, res))
	slog.Info("order submitted", "temp_id", tempID, "order_id", res.Order.ID)
	return Outcome{TempID: tempID, Result: res, QueuedCount: m.Len()}
}

// Enqueue appends a sale to the queue, persists it and records a queued
// history entry. It returns the new queue length.
func (m *Manager) Enqueue(ctx context.Context, tempID string, draft order.Draft, lastError string) int {
	now := m.now()
	item := order.QueuedOrder{
		TempID:    tempID,
		Payload:   order.Payload{Draft: draft.Clone(), Offline: true},
		CreatedAt: now,
		LastError: lastError,
	}

	count := m.commit(ctx, func(items []order.QueuedOrder) []order.QueuedOrder {
		return append(items, item)
	})

	createdAt := now
	if e, ok := m.book.Find(tempID); ok && !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	m.book.Upsert(ctx, order.HistoryEntry{
		ID:            tempID,
		TempID:        tempID,
		Status:        order.StatusQueued,
		PaymentMethod: draft.PaymentMethod,
		Total:         draft.Total,
		CreatedAt:     createdAt,
		Offline:       true,
		Note:          lastError,
	})

	slog.Info("sale queued", "temp_id", tempID, "queued", count)
	return count
}

// RequestDrain starts an automatic drain in the background unless the till
// is offline or an automatic drain already ran within the throttle window.
func (m *Manager) RequestDrain() bool {
	if !m.conn.Online() || m.Len() == 0 {
		return false
	}
	if !m.begin() {
		return false
	}
	if !m.limiter.AllowN(m.now(), 1) {
		m.inflight.Done()
		slog.Debug("automatic drain throttled")
		return false
	}
	go func() {
		defer m.inflight.Done()
		m.drain(context.Background())
	}()
	return true
}

// Drain runs a drain now, bypassing the throttle and the connectivity check.
// Used for operator-triggered retries. The drain runs to completion even if
// ctx is cancelled part-way.
func (m *Manager) Drain(ctx context.Context) DrainReport {
	if !m.begin() {
		return DrainReport{Skipped: true, Remaining: m.Len()}
	}
	defer m.inflight.Done()
	return m.drain(context.WithoutCancel(ctx))
}

// Wait blocks until every in-flight drain and submission has finished.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Close stops new drains from starting and waits for the running ones.
// Later Drain calls report Skipped. Sales can still be queued in memory.
func (m *Manager) Close() {
	m.closeMu.Lock()
	m.closing = true
	m.closeMu.Unlock()
	m.inflight.Wait()
}

// begin registers one unit of in-flight work unless Close has started.
func (m *Manager) begin() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closing {
		return false
	}
	m.inflight.Add(1)
	return true
}

// drain submits the sales queued when it starts, oldest first, stopping at
// the first failure.
func (m *Manager) drain(ctx context.Context) DrainReport {
	if !m.syncing.CompareAndSwap(false, true) {
		return DrainReport{Skipped: true, Remaining: m.Len()}
	}
	m.changed()
	defer func() {
		m.syncing.Store(false)
		m.changed()
	}()

	var report DrainReport
	pending := m.Items()
	slog.Debug("drain starting", "queued", len(pending))

	for _, item := range pending {
		report.Attempted++
		res, err := m.submitter.Submit(ctx, item.Payload)
		if err != nil {
			report.LastError = err.Error()
			m.recordFailure(ctx, item.TempID, err)
			break
		}

		m.commit(ctx, func(items []order.QueuedOrder) []order.QueuedOrder {
			return removeItem(items, item.TempID)
		})

		base, ok := m.book.Find(item.TempID)
		if !ok {
			base = order.HistoryEntry{
				ID:            item.TempID,
				TempID:        item.TempID,
				PaymentMethod: item.Payload.PaymentMethod,
				Total:         item.Payload.Total,
				CreatedAt:     item.CreatedAt,
			}
		}
		m.book.Upsert(ctx, m.submitter.Entry(base, res))
		report.Submitted++
		slog.Info("queued sale submitted", "temp_id", item.TempID, "order_id", res.Order.ID, "attempts", item.Attempts)
	}

	report.Remaining = m.Len()
	slog.Info("drain finished",
		"attempted", report.Attempted,
		"submitted", report.Submitted,
		"remaining", report.Remaining,
	)
	return report
}

// recordFailure bumps attempts and lastError for one queued sale.
func (m *Manager) recordFailure(ctx context.Context, tempID string, cause error) {
	msg := cause.Error()
	attempts := 0
	m.commit(ctx, func(items []order.QueuedOrder) []order.QueuedOrder {
		for i := range items {
			if items[i].TempID == tempID {
				items[i].Attempts++
				items[i].LastError = msg
				attempts = items[i].Attempts
				return items
			}
		}
		return nil
	})
	m.book.Apply(ctx, history.Update{Key: tempID, Note: &msg})

	if attempts >= m.alertAfter {
		slog.Warn("queued sale keeps failing", "temp_id", tempID, "attempts", attempts, "error", msg)
		return
	}
	slog.Info("queued sale submission failed", "temp_id", tempID, "attempts", attempts, "error", msg)
}

// commit applies mutate to a private copy of the queue and swaps it in.
// mutate returns nil for no change. It returns the resulting queue length.
func (m *Manager) commit(ctx context.Context, mutate func([]order.QueuedOrder) []order.QueuedOrder) int {
	m.mu.Lock()
	next := mutate(cloneItems(m.items))
	if next == nil {
		n := len(m.items)
		m.mu.Unlock()
		return n
	}
	m.items = next
	if m.persist != nil {
		// Saved even when the caller has gone away.
		if err := m.persist.SaveQueue(context.WithoutCancel(ctx), cloneItems(next)); err != nil {
			slog.Error("failed to persist offline queue", "error", err)
		}
	}
	n := len(next)
	m.mu.Unlock()

	m.changed()
	return n
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}

func removeItem(items []order.QueuedOrder, tempID string) []order.QueuedOrder {
	out := make([]order.QueuedOrder, 0, len(items))
	for _, it := range items {
		if it.TempID != tempID {
			out = append(out, it)
		}
	}
	return out
}

func cloneItems(items []order.QueuedOrder) []order.QueuedOrder {
	out := make([]order.QueuedOrder, len(items))
	for i, it := range items {
		it.Payload.Draft = it.Payload.Draft.Clone()
		out[i] = it
	}
	return out
}
