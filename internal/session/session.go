package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/connectivity"
	"github.com/roach88/tillsync/internal/history"
	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/pipeline"
	"github.com/roach88/tillsync/internal/queue"
	"github.com/roach88/tillsync/internal/reconcile"
	"github.com/roach88/tillsync/internal/store"
)

// Result statuses for SubmitOrder.
const (
	StatusQueued    = "queued"
	StatusSubmitted = "submitted"
)

// SubmitOptions tunes one SubmitOrder call.
type SubmitOptions struct {
	// ForceOffline queues the sale without trying the network.
	ForceOffline bool
}

// SubmitResult is the outcome of SubmitOrder. Both statuses are successes.
type SubmitResult struct {
	Status       string          `json:"status"`
	TempID       string          `json:"tempId"`
	QueuedCount  int             `json:"queuedCount,omitempty"`
	Order        *client.Order   `json:"order,omitempty"`
	Payment      *client.Payment `json:"payment,omitempty"`
	PaymentError string          `json:"paymentError,omitempty"`
}

// Session wires the submission engine for one signed-in till.
type Session struct {
	cfg     config.Config
	store   *store.Store
	ids     order.IDGenerator
	monitor *connectivity.Monitor
	book    *history.Book
	queue   *queue.Manager
	poller  *reconcile.Poller
	pusher  *reconcile.Pusher
	prober  *connectivity.Prober
	subs    *subscribers

	stopListening func()

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	ids        order.IDGenerator
	now        func() time.Time
	httpClient *http.Client
	online     bool
	probe      bool
	push       bool
}

// WithIDGenerator sets the temp id source.
func WithIDGenerator(g order.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock sets the time source for createdAt and syncedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHTTPClient overrides the HTTP client used for order and payment calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithInitialOnline sets the connectivity state assumed before the first
// probe. Defaults to online.
func WithInitialOnline(online bool) Option {
	return func(o *options) { o.online = online }
}

// WithoutProbe disables the reachability prober. Connectivity then changes
// only through SetOnline.
func WithoutProbe() Option {
	return func(o *options) { o.probe = false }
}

// WithoutPush disables the WebSocket status channel. Polling still runs.
func WithoutPush() Option {
	return func(o *options) { o.push = false }
}

// Open loads persisted state from cfg.Database and wires a Session. The
// background loops do not run until Start.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := options{ids: order.UUIDv7Generator{}, now: time.Now, online: true, probe: true, push: true}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	queued, err := st.LoadQueue(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load offline queue: %w", err)
	}
	recent, err := st.LoadHistory(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load order history: %w", err)
	}

	s := &Session{
		cfg:     cfg,
		store:   st,
		ids:     o.ids,
		monitor: connectivity.NewMonitor(o.online),
		subs:    newSubscribers(),
	}

	clientCfg := func(base string) client.Config {
		return client.Config{
			BaseURL:    base,
			TenantID:   cfg.TenantID,
			Token:      cfg.Token,
			Timeout:    cfg.RequestTimeout,
			HTTPClient: o.httpClient,
		}
	}
	orders := client.NewOrders(clientCfg(cfg.OrderServiceURL))
	var payments pipeline.PaymentSettler
	if cfg.GatewayURL != "" {
		payments = client.NewPayments(clientCfg(cfg.GatewayURL))
	}

	s.book = history.New(recent, st,
		history.WithClock(o.now),
		history.WithOnChange(s.subs.notify),
	)
	s.queue = queue.New(queued, st,
		pipeline.New(orders, payments).WithClock(o.now),
		s.book,
		s.monitor,
		queue.WithClock(o.now),
		queue.WithThrottle(cfg.DrainThrottle),
		queue.WithAlertAfter(cfg.AlertAfterAttempts),
		queue.WithOnChange(s.subs.notify),
	)
	s.poller = reconcile.NewPoller(s.book, orders, s.monitor,
		reconcile.WithInterval(cfg.PollInterval),
		reconcile.WithOnTick(func() { s.queue.RequestDrain() }),
	)

	if o.push {
		pushURL, err := cfg.PushURL()
		if err != nil {
			slog.Warn("status push disabled", "error", err)
		} else {
			s.pusher = reconcile.NewPusher(pushURL, s.book, cfg.ReconnectDelay, cfg.RequestTimeout)
		}
	}
	if o.probe && cfg.OrderServiceURL != "" {
		s.prober = connectivity.NewProber(s.monitor, cfg.OrderServiceURL, o.httpClient, cfg.ProbeInterval)
	}

	s.stopListening = s.monitor.OnChange(func(online bool) {
		if online {
			s.queue.RequestDrain()
		}
		s.subs.notify()
	})

	slog.Info("session opened",
		"tenant_id", cfg.TenantID,
		"queued", len(queued),
		"history", len(recent),
	)
	return s, nil
}

// Start launches status push, polling and probing. Loops stop when ctx is
// cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = g

	g.Go(func() error { return s.poller.Run(gctx) })
	if s.pusher != nil {
		g.Go(func() error { return s.pusher.Run(gctx) })
	}
	if s.prober != nil {
		g.Go(func() error { return s.prober.Run(gctx) })
	}

	// Sales left over from an earlier session go out as soon as possible.
	s.queue.RequestDrain()
	return nil
}

// Close stops the background loops, waits for in-flight drains and closes
// the store. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel, g := s.cancel, s.group
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			if err := g.Wait(); err != nil {
				slog.Warn("background loop ended with error", "error", err)
			}
		}
		s.stopListening()
		s.queue.Close()
		s.subs.closeAll()
		s.closeErr = s.store.Close()
		slog.Info("session closed", "queued", s.queue.Len())
	})
	return s.closeErr
}

// SubmitOrder records a sale. It submits immediately when online and queues
// the sale otherwise, or when submission fails. The only error returned is
// an *order.ValidationError.
func (s *Session) SubmitOrder(ctx context.Context, draft order.Draft, opts SubmitOptions) (SubmitResult, error) {
	if err := order.Validate(draft, s.cfg.TenantID); err != nil {
		return SubmitResult{}, err
	}

	tempID := s.ids.Generate()
	out := s.queue.SubmitOrQueue(ctx, tempID, draft, opts.ForceOffline)
	if out.Queued {
		return SubmitResult{Status: StatusQueued, TempID: out.TempID, QueuedCount: out.QueuedCount}, nil
	}

	created := out.Result.Order
	return SubmitResult{
		Status:       StatusSubmitted,
		TempID:       out.TempID,
		Order:        &created,
		Payment:      out.Result.Payment,
		PaymentError: out.Result.PaymentError,
	}, nil
}

// RetryQueue drains the queue now, ignoring the automatic-drain throttle.
func (s *Session) RetryQueue(ctx context.Context) queue.DrainReport {
	return s.queue.Drain(ctx)
}

// RefreshOrderStatuses runs one poll cycle now.
func (s *Session) RefreshOrderStatuses(ctx context.Context) reconcile.PollReport {
	return s.poller.PollOnce(ctx)
}

// SetOnline overrides the connectivity state, as an operator toggle or an
// OS network notification would.
func (s *Session) SetOnline(online bool) {
	s.monitor.Set(online)
}

// Wait blocks until every drain started so far has finished.
func (s *Session) Wait() {
	s.queue.Wait()
}

// QueuedOrders returns the offline queue in enqueue order.
func (s *Session) QueuedOrders() []order.QueuedOrder {
	return s.queue.Items()
}

// RecentOrders returns the recent-order history, newest first.
func (s *Session) RecentOrders() []order.HistoryEntry {
	return s.book.Entries()
}

// IsOnline reports the current connectivity state.
func (s *Session) IsOnline() bool {
	return s.monitor.Online()
}

// IsSyncing reports whether a drain is running.
func (s *Session) IsSyncing() bool {
	return s.queue.Syncing()
}

// Subscribe returns a channel that receives a signal after any change to
// the queue, history, connectivity or syncing state. Signals coalesce: a
// slow reader sees one pending signal, not one per change. Call the
// returned func to unsubscribe. The channel is closed by Close.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	return s.subs.add()
}
