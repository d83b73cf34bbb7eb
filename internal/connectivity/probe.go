package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultProbeInterval is how often the Prober checks reachability.
const DefaultProbeInterval = 10 * time.Second

// Prober feeds a Monitor by issuing HEAD requests to a URL. Any HTTP
// response, whatever its status, counts as online. A transport error counts
// as offline.
type Prober struct {
	monitor  *Monitor
	url      string
	client   *http.Client
	interval time.Duration
}

// NewProber creates a Prober. A nil client uses a client with a 5s timeout.
func NewProber(m *Monitor, url string, client *http.Client, interval time.Duration) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{monitor: m, url: url, client: client, interval: interval}
}

// Check probes once and updates the Monitor. It returns the observed state.
func (p *Prober) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		slog.Error("invalid probe url", "url", p.url, "error", err)
		return p.monitor.Online()
	}
	online := true
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; leave the state alone.
			return p.monitor.Online()
		}
		slog.Debug("probe failed", "url", p.url, "error", err)
		online = false
	} else {
		resp.Body.Close()
	}
	p.monitor.Set(online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
