package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/history"
	"github.com/roach88/tillsync/internal/order"
)

const (
	// DefaultPollInterval is the spacing between poll cycles.
	DefaultPollInterval = 15 * time.Second

	// MinPollInterval is the floor applied to configured intervals.
	MinPollInterval = 5 * time.Second

	// pollConcurrency bounds the fetches in flight during one cycle.
	pollConcurrency = 4
)

// OrderFetcher reads the latest state of one order.
// Implemented by *client.Orders.
type OrderFetcher interface {
	Get(ctx context.Context, reference string) (client.Order, error)
}

// Book is the history the poller reads candidates from and writes to.
// Implemented by *history.Book.
type Book interface {
	Applier
	Monitored() []order.HistoryEntry
}

// Connectivity reports whether the till believes it is online.
type Connectivity interface {
	Online() bool
}

// PollReport summarizes one poll cycle.
type PollReport struct {
	Checked int `json:"checked"`
	Matched int `json:"matched"`
	Failed  int `json:"failed"`
}

// Poller fetches the latest state of every unresolved sale on a timer.
type Poller struct {
	book     Book
	orders   OrderFetcher
	conn     Connectivity
	interval time.Duration
	onTick   func()
}

// PollOption configures a Poller.
type PollOption func(*Poller)

// WithInterval sets the poll spacing. Values below MinPollInterval are
// raised to it.
func WithInterval(d time.Duration) PollOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = max(d, MinPollInterval)
		}
	}
}

// WithOnTick registers a callback run after every timed cycle, online or not.
func WithOnTick(fn func()) PollOption {
	return func(p *Poller) { p.onTick = fn }
}

// NewPoller creates a Poller.
func NewPoller(book Book, orders OrderFetcher, conn Connectivity, opts ...PollOption) *Poller {
	p := &Poller{
		book:     book,
		orders:   orders,
		conn:     conn,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the effective poll spacing.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls every interval until ctx is done. Cycles are skipped while
// offline. It always returns nil.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.conn.Online() {
				p.PollOnce(ctx)
			}
			if p.onTick != nil {
				p.onTick()
			}
		}
	}
}

// PollOnce fetches every monitored sale that has a server reference and
// merges what comes back. A failed fetch is logged and skipped.
func (p *Poller) PollOnce(ctx context.Context) PollReport {
	var candidates []order.HistoryEntry
	for _, e := range p.book.Monitored() {
		if e.Reference != "" {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return PollReport{}
	}

	var matched, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, e := range candidates {
		ref := e.Reference
		g.Go(func() error {
			o, err := p.orders.Get(gctx, ref)
			if err != nil {
				failed.Add(1)
				slog.Warn("status poll failed", "reference", ref, "error", err)
				return nil
			}
			if p.book.Apply(gctx, FromOrder(ref, o)) {
				matched.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := PollReport{Checked: len(candidates), Matched: int(matched.Load()), Failed: int(failed.Load())}
	slog.Debug("status poll finished", "checked", report.Checked, "matched", report.Matched, "failed", report.Failed)
	return report
}

var _ Book = (*history.Book)(nil)
