package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay is the pause before redialing a dropped push channel.
const DefaultReconnectDelay = 5 * time.Second

// DefaultPongWait is how long the push channel may stay silent, pongs
// included, before it is treated as dead. Pings go out at 9/10 of it.
const DefaultPongWait = 60 * time.Second

// Pusher holds one WebSocket to the order service and applies every status
// message it receives. A dropped or refused connection is redialed after a
// fixed delay, indefinitely, until the run context ends.
type Pusher struct {
	url       string
	apply     Applier
	dialer    *websocket.Dialer
	delay     time.Duration
	pongWait  time.Duration
	connected atomic.Bool
}

// PushOption configures a Pusher.
type PushOption func(*Pusher)

// WithPongWait overrides DefaultPongWait.
func WithPongWait(d time.Duration) PushOption {
	return func(p *Pusher) {
		if d > 0 {
			p.pongWait = d
		}
	}
}

// NewPusher creates a Pusher for url, which already carries the tenant and
// token query parameters. handshakeTimeout bounds each dial.
func NewPusher(url string, apply Applier, delay, handshakeTimeout time.Duration, opts ...PushOption) *Pusher {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	dialer := *websocket.DefaultDialer
	if handshakeTimeout > 0 {
		dialer.HandshakeTimeout = handshakeTimeout
	}
	p := &Pusher{url: url, apply: apply, dialer: &dialer, delay: delay, pongWait: DefaultPongWait}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connected reports whether the socket is currently open.
func (p *Pusher) Connected() bool {
	return p.connected.Load()
}

// Run keeps the push channel open until ctx is done. It always returns nil;
// connection failures are logged and retried.
func (p *Pusher) Run(ctx context.Context) error {
	for {
		err := p.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("push channel closed, reconnecting", "delay", p.delay, "error", err)

		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// listen dials once and reads until the socket fails or ctx ends.
func (p *Pusher) listen(ctx context.Context) error {
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	p.connected.Store(true)
	defer p.connected.Store(false)
	slog.Info("push channel connected")

	// A half-open socket never errors on read; the deadline turns missing
	// pongs into a read error and a redial.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.pongWait))
	})
	stopPing := p.keepalive(conn)
	defer stopPing()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(p.pongWait)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		u, err := ParseMessage(data)
		if err != nil {
			slog.Warn("skipping push message", "error", err)
			continue
		}
		if !p.apply.Apply(ctx, u) {
			slog.Debug("push message for unknown sale", "key", u.Key)
		}
	}
}

// keepalive pings conn until the returned func is called.
func (p *Pusher) keepalive(conn *websocket.Conn) func() {
	period := p.pongWait * 9 / 10
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(period)); err != nil {
					slog.Debug("push channel ping failed", "error", err)
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
