package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/history"
	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/reconcile"
	"github.com/roach88/tillsync/internal/session"
	"github.com/roach88/tillsync/internal/testutil"
)

// Epoch is the frozen start time of every scenario run.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// pushTimeout bounds the wait for a pushed update to land.
const pushTimeout = 2 * time.Second

// Result is the outcome of running one scenario.
type Result struct {
	// Scenario is the scenario name.
	Scenario string

	// Pass is true when every step expectation and assertion held.
	Pass bool

	// Errors lists each failed expectation or assertion.
	Errors []string

	// Calls is the remote call trace. Calls made by one refresh step are
	// sorted, since polls fan out concurrently.
	Calls []string

	// Queue is the final offline queue.
	Queue []order.QueuedOrder

	// History is the final recent-order list, newest first.
	History []order.HistoryEntry
}

// run holds the state of one scenario execution.
type run struct {
	scenario *Scenario
	service  *Service
	cfg      config.Config
	clock    *testutil.ManualClock
	ids      *order.FixedGenerator
	online   bool

	sess   *session.Session
	cancel context.CancelFunc

	calls  []string
	errors []string
}

// Run executes a scenario against a fresh database and a scripted service.
// A returned error means the scenario could not be executed; failed
// expectations are reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "tillsync-harness-")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	service := NewService()
	defer service.Close()
	if scenario.Service != nil {
		service.Apply(*scenario.Service)
	}

	cfg := config.Defaults()
	cfg.OrderServiceURL = service.URL()
	cfg.GatewayURL = service.URL()
	cfg.TenantID = "t1"
	cfg.Token = "tok"
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.Database = filepath.Join(dir, "till.db")

	r := &run{
		scenario: scenario,
		service:  service,
		cfg:      cfg,
		clock:    testutil.NewManualClock(Epoch),
		ids:      order.NewFixedGenerator(scenarioIDs(scenario)...),
		online:   scenario.startsOnline(),
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	defer r.close()

	for i, step := range scenario.Steps {
		// Each step starts a fresh automatic-drain window.
		r.clock.Advance(cfg.DrainThrottle)
		mark := len(service.Calls())
		if err := r.step(i, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		r.sess.Wait()
		stepCalls := service.Calls()[mark:]
		if step.Refresh {
			sort.Strings(stepCalls)
		}
		r.calls = append(r.calls, stepCalls...)
	}

	result := &Result{
		Scenario: scenario.Name,
		Calls:    r.calls,
		Queue:    r.sess.QueuedOrders(),
		History:  r.sess.RecentOrders(),
	}
	result.Errors = append(r.errors, checkAssertions(scenario.Assertions, result)...)
	result.Pass = len(result.Errors) == 0
	return result, nil
}

func (r *run) open() error {
	opts := []session.Option{
		session.WithIDGenerator(r.ids),
		session.WithClock(r.clock.Now),
		session.WithInitialOnline(r.online),
		session.WithoutProbe(),
	}
	push := r.scenario.usesPush()
	if !push {
		opts = append(opts, session.WithoutPush())
	}

	sess, err := session.Open(context.Background(), r.cfg, opts...)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	r.sess = sess
	if push {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		if err := sess.Start(ctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		sess.Wait()
	}
	return nil
}

func (r *run) close() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	_ = r.sess.Close()
}

func (r *run) step(index int, step Step) error {
	ctx := context.Background()
	switch {
	case step.Submit != nil:
		draft, err := decodeDraft(step.Submit.Draft)
		if err != nil {
			return err
		}
		res, err := r.sess.SubmitOrder(ctx, draft, session.SubmitOptions{ForceOffline: step.Submit.ForceOffline})
		if err != nil {
			r.expect(index, step.Expect, map[string]any{"error": err.Error()})
			return nil
		}
		r.expect(index, step.Expect, res)

	case step.SetOnline != nil:
		r.online = *step.SetOnline
		r.sess.SetOnline(r.online)

	case step.Retry:
		r.expect(index, step.Expect, r.sess.RetryQueue(ctx))

	case step.Refresh:
		r.expect(index, step.Expect, r.sess.RefreshOrderStatuses(ctx))

	case step.Push != nil:
		return r.push(step.Push)

	case step.Reload:
		r.close()
		return r.open()

	case step.Service != nil:
		r.service.Apply(*step.Service)
	}
	return nil
}

// push sends a status message and waits until the session has applied it.
// A message for a sale the till does not know is sent without waiting.
func (r *run) push(msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}
	update, parseErr := reconcile.ParseMessage(data)

	if err := r.service.Push(data, pushTimeout); err != nil {
		return err
	}
	if parseErr != nil || !r.knows(update.Key) {
		return nil
	}

	deadline := time.Now().Add(pushTimeout)
	for !r.applied(update) {
		if time.Now().After(deadline) {
			return fmt.Errorf("push for %s was not applied within %s", update.Key, pushTimeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (r *run) knows(key string) bool {
	for _, e := range r.sess.RecentOrders() {
		if e.Matches(key) {
			return true
		}
	}
	return false
}

func (r *run) applied(u history.Update) bool {
	for _, e := range r.sess.RecentOrders() {
		if !e.Matches(u.Key) {
			continue
		}
		return (u.Status == nil || e.Status == *u.Status) &&
			(u.PaymentStatus == nil || e.PaymentStatus == *u.PaymentStatus) &&
			(u.PaymentURL == nil || e.PaymentURL == *u.PaymentURL) &&
			(u.Note == nil || e.Note == *u.Note)
	}
	return false
}

func (r *run) expect(index int, want map[string]any, got any) {
	if len(want) == 0 {
		return
	}
	if msg := subsetMismatch(want, got); msg != "" {
		r.errors = append(r.errors, fmt.Sprintf("steps[%d] expect: %s", index, msg))
	}
}

// scenarioIDs returns the declared temp ids, or tmp-1, tmp-2, ... with one
// id per submit step.
func scenarioIDs(s *Scenario) []string {
	if len(s.IDs) > 0 {
		return s.IDs
	}
	var ids []string
	for _, step := range s.Steps {
		if step.Submit != nil {
			ids = append(ids, fmt.Sprintf("tmp-%d", len(ids)+1))
		}
	}
	return ids
}

func decodeDraft(raw map[string]any) (order.Draft, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return order.Draft{}, fmt.Errorf("encode draft: %w", err)
	}
	var d order.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return order.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}
