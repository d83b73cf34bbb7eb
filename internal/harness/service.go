package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Service is a scripted order service and payment gateway on one local
// server. Every remote call is recorded as "METHOD /path body", with the
// body re-encoded in canonical JSON key order.
type Service struct {
	srv *httptest.Server

	mu            sync.Mutex
	calls         []string
	nextID        int
	createStatus  int
	paymentStatus int
	orders        map[string]map[string]any
	ws            *websocket.Conn
}

// NewService starts a Service. Call Close when done.
func NewService() *Service {
	s := &Service{orders: make(map[string]map[string]any)}

	r := chi.NewRouter()
	r.Head("/", func(http.ResponseWriter, *http.Request) {})
	r.Post("/orders", s.createOrder)
	r.Get("/orders/{id}", s.getOrder)
	r.Post("/payments", s.settle)
	r.Get("/ws/orders", s.statusSocket)

	s.srv = httptest.NewServer(r)
	return s
}

// URL is the base URL of both the order service and the gateway.
func (s *Service) URL() string {
	return s.srv.URL
}

// Close shuts the server down.
func (s *Service) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Apply changes how subsequent calls are answered.
func (s *Service) Apply(step ServiceStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createStatus = step.CreateStatus
	s.paymentStatus = step.PaymentStatus
	for id, body := range step.Orders {
		s.orders[id] = body
	}
}

// Calls returns the recorded calls in arrival order.
func (s *Service) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Push writes msg to the connected status socket, waiting up to timeout
// for a till to connect.
func (s *Service) Push(msg []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		conn := s.ws
		if conn != nil {
			err := conn.WriteMessage(websocket.TextMessage, msg)
			s.mu.Unlock()
			return err
		}
		s.mu.Unlock()
		if time.Now().After(deadline) {
			return errors.New("no till connected to the status socket")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *Service) record(req *http.Request) {
	line := req.Method + " " + req.URL.Path
	body, _ := io.ReadAll(req.Body)
	if len(body) > 0 {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			line += " !invalid-json " + string(body)
		} else {
			canonical, _ := json.Marshal(v)
			line += " " + string(canonical)
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, line)
	s.mu.Unlock()
}

func (s *Service) createOrder(w http.ResponseWriter, req *http.Request) {
	s.record(req)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createStatus != 0 {
		writeJSON(w, s.createStatus, map[string]any{"error": "order service unavailable"})
		return
	}
	s.nextID++
	writeJSON(w, http.StatusCreated, map[string]any{"id": fmt.Sprintf("o%d", s.nextID), "status": "pending"})
}

func (s *Service) getOrder(w http.ResponseWriter, req *http.Request) {
	s.record(req)
	s.mu.Lock()
	body, ok := s.orders[chi.URLParam(req, "id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Service) settle(w http.ResponseWriter, req *http.Request) {
	var body struct {
		OrderID string `json:"orderId"`
	}
	raw, _ := io.ReadAll(req.Body)
	_ = json.Unmarshal(raw, &body)
	req.Body = io.NopCloser(strings.NewReader(string(raw)))
	s.record(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paymentStatus != 0 {
		writeJSON(w, s.paymentStatus, map[string]any{"message": "gateway unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "pending",
		"payment_url": "https://pay.example/" + body.OrderID,
	})
}

func (s *Service) statusSocket(w http.ResponseWriter, req *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.ws = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.ws == conn {
			s.ws = nil
		}
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
