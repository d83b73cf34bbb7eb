package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/history"
	"github.com/roach88/tillsync/internal/order"
)

type staticConn bool

func (c staticConn) Online() bool { return bool(c) }

// orderServer serves GET /orders/{id} from a mutable map.
type orderServer struct {
	mu     sync.Mutex
	orders map[string]map[string]any
	gets   []string
}

func newOrderServer(t *testing.T, orders map[string]map[string]any) (*orderServer, *client.Orders) {
	t.Helper()
	s := &orderServer{orders: orders}
	r := chi.NewRouter()
	r.Get("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		s.mu.Lock()
		s.gets = append(s.gets, id)
		body, ok := s.orders[id]
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return s, client.NewOrders(client.Config{BaseURL: srv.URL, TenantID: "t1", Timeout: time.Second})
}

func (s *orderServer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gets...)
}

func mixedBook() *history.Book {
	return history.New([]order.HistoryEntry{
		{ID: "o1", Reference: "o1", TempID: "tmp-1", Status: "submitted", PaymentStatus: "pending"},
		{ID: "o2", Reference: "o2", TempID: "tmp-2", Status: "completed", PaymentStatus: "paid"},
		{ID: "tmp-3", TempID: "tmp-3", Status: order.StatusQueued, Offline: true},
		{ID: "o4", Reference: "o4", TempID: "tmp-4", Status: "processing"},
		{ID: "tmp-5", TempID: "tmp-5", Status: order.StatusSubmitting},
	}, nil)
}

func TestPollOnce_FetchesOnlyUnresolvedReferencedSales(t *testing.T) {
	srv, orders := newOrderServer(t, map[string]map[string]any{
		"o1": {"id": "o1", "status": "completed", "payment_status": "paid"},
		"o4": {"id": "o4", "status": "processing"},
	})
	book := mixedBook()

	report := NewPoller(book, orders, staticConn(true)).PollOnce(context.Background())

	assert.Equal(t, PollReport{Checked: 2, Matched: 2}, report)
	assert.ElementsMatch(t, []string{"o1", "o4"}, srv.requested())

	e, _ := book.Find("o1")
	assert.Equal(t, "completed", e.Status)
	assert.Equal(t, "paid", e.PaymentStatus)
	require.NotNil(t, e.SyncedAt)
}

func TestPollOnce_FailedFetchIsSkipped(t *testing.T) {
	_, orders := newOrderServer(t, map[string]map[string]any{
		"o4": {"id": "o4", "status": "accepted"},
	})
	book := mixedBook()

	report := NewPoller(book, orders, staticConn(true)).PollOnce(context.Background())

	assert.Equal(t, PollReport{Checked: 2, Matched: 1, Failed: 1}, report)
	e, _ := book.Find("o1")
	assert.Equal(t, "submitted", e.Status)
	e, _ = book.Find("o4")
	assert.Equal(t, "accepted", e.Status)
}

func TestPollOnce_Idempotent(t *testing.T) {
	_, orders := newOrderServer(t, map[string]map[string]any{
		"o1": {"id": "o1", "status": "processing", "payment_status": "pending"},
		"o4": {"id": "o4", "status": "processing", "note": "in kitchen"},
	})
	book := mixedBook()
	p := NewPoller(book, orders, staticConn(true))

	p.PollOnce(context.Background())
	first := book.Entries()
	p.PollOnce(context.Background())

	assert.Equal(t, first, book.Entries())
	assert.Len(t, book.Entries(), 5)
}

func TestPollOnce_NothingToDo(t *testing.T) {
	srv, orders := newOrderServer(t, nil)
	book := history.New([]order.HistoryEntry{
		{ID: "o2", Reference: "o2", Status: "completed", PaymentStatus: "paid"},
	}, nil)

	report := NewPoller(book, orders, staticConn(true)).PollOnce(context.Background())
	assert.Equal(t, PollReport{}, report)
	assert.Empty(t, srv.requested())
}

func TestWithInterval_Floor(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultPollInterval},
		{time.Second, MinPollInterval},
		{5 * time.Second, 5 * time.Second},
		{30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		p := NewPoller(nil, nil, staticConn(true), WithInterval(tt.in))
		assert.Equal(t, tt.want, p.Interval(), "interval %s", tt.in)
	}
}

func TestRun_SkipsFetchWhileOfflineButTicks(t *testing.T) {
	srv, orders := newOrderServer(t, map[string]map[string]any{
		"o1": {"id": "o1", "status": "completed"},
	})
	var ticks atomic.Int32
	p := NewPoller(mixedBook(), orders, staticConn(false), WithOnTick(func() { ticks.Add(1) }))
	p.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Empty(t, srv.requested())
}

func TestRun_PollsWhileOnline(t *testing.T) {
	_, orders := newOrderServer(t, map[string]map[string]any{
		"o1": {"id": "o1", "status": "completed", "payment_status": "paid"},
		"o4": {"id": "o4", "status": "fulfilled"},
	})
	book := mixedBook()
	p := NewPoller(book, orders, staticConn(true))
	p.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, e := range book.Monitored() {
			if e.Reference != "" {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	e, _ := book.Find("o4")
	assert.Equal(t, "fulfilled", e.Status)
}
