package session

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeBackend plays the order service and the payment gateway on one
// server, recording every call as a trace line.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	trace      []string
	nextID     int
	createErr  int
	createGate chan struct{}
	entered    chan struct{}
	orders     map[string]map[string]any
	payment    map[string]any
	paymentErr int
	ws         *websocket.Conn
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:       t,
		orders:  make(map[string]map[string]any),
		payment: map[string]any{"status": "pending", "payment_url": "https://pay.example/checkout"},
	}

	upgrader := websocket.Upgrader{}
	r := chi.NewRouter()
	r.Head("/", func(w http.ResponseWriter, _ *http.Request) {})
	r.Post("/orders", b.createOrder)
	r.Get("/orders/{id}", b.getOrder)
	r.Post("/payments", b.settle)
	r.Get("/ws/orders", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("tenantId") != "t1" || req.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		b.mu.Lock()
		b.ws = conn
		b.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	line := req.Method + " " + req.URL.Path
	if len(body) > 0 {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			line += " !invalid-json " + string(body)
		} else {
			canonical, _ := json.Marshal(v)
			line += " " + string(canonical)
		}
	}
	b.mu.Lock()
	b.trace = append(b.trace, line)
	b.mu.Unlock()
}

func (b *fakeBackend) createOrder(w http.ResponseWriter, req *http.Request) {
	if req.Header.Get("X-Tenant-ID") != "t1" || req.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, `{"error":"bad credentials"}`, http.StatusUnauthorized)
		return
	}
	b.record(req)

	b.mu.Lock()
	entered, gate := b.entered, b.createGate
	b.entered, b.createGate = nil, nil
	b.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != 0 {
		w.WriteHeader(b.createErr)
		_, _ = w.Write([]byte(`{"error":"order service unavailable"}`))
		return
	}
	b.nextID++
	id := fmt.Sprintf("o%d", b.nextID)
	writeJSON(w, map[string]any{"id": id})
}

func (b *fakeBackend) getOrder(w http.ResponseWriter, req *http.Request) {
	b.record(req)
	b.mu.Lock()
	body, ok := b.orders[chi.URLParam(req, "id")]
	b.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, body)
}

func (b *fakeBackend) settle(w http.ResponseWriter, req *http.Request) {
	b.record(req)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paymentErr != 0 {
		w.WriteHeader(b.paymentErr)
		_, _ = w.Write([]byte(`{"message":"gateway timeout"}`))
		return
	}
	writeJSON(w, b.payment)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// gateCreates makes the next create block until the returned release is
// called. entered is closed once the create has arrived.
func (b *fakeBackend) gateCreates() (entered <-chan struct{}, release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entered = make(chan struct{})
	b.createGate = make(chan struct{})
	gate := b.createGate
	return b.entered, func() { close(gate) }
}

func (b *fakeBackend) failCreates(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createErr = status
}

func (b *fakeBackend) failPayments(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paymentErr = status
}

func (b *fakeBackend) setOrder(id string, body map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[id] = body
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.trace...)
}

func (b *fakeBackend) callsTo(prefix string) []string {
	var out []string
	for _, c := range b.calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// push sends msg on the status socket once the session has connected.
func (b *fakeBackend) push(msg string) {
	b.t.Helper()
	require.Eventually(b.t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.ws != nil
	}, 2*time.Second, 10*time.Millisecond, "session never connected to the status socket")

	b.mu.Lock()
	defer b.mu.Unlock()
	require.NoError(b.t, b.ws.WriteMessage(websocket.TextMessage, []byte(msg)))
}
