package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/order"
)

func newTestServer(t *testing.T, r chi.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func testPayload() order.Payload {
	return order.Payload{
		Draft: order.Draft{
			Items:         []order.LineItem{{ProductID: "p1", Quantity: 2, UnitPrice: 5, LineTotal: 10}},
			PaymentMethod: order.MethodCash,
			Total:         10,
			Metadata:      map[string]any{order.IdempotencyKeyField: "tmp-1"},
		},
		Offline: true,
	}
}

func TestOrders_CreateSendsHeadersAndBody(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any

	r := chi.NewRouter()
	r.Post("/api/orders", func(w http.ResponseWriter, req *http.Request) {
		gotHeaders = req.Header.Clone()
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"o1","status":"submitted","payment_status":"pending"}`))
	})
	srv := newTestServer(t, r)

	c := NewOrders(Config{BaseURL: srv.URL + "/api/", TenantID: "t1", Token: "secret"})
	o, err := c.Create(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "submitted", o.Status())
	assert.Equal(t, "pending", o.PaymentStatus())

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "t1", gotHeaders.Get("X-Tenant-ID"))
	assert.Equal(t, "Bearer secret", gotHeaders.Get("Authorization"))

	assert.Equal(t, true, gotBody["offline"])
	assert.Equal(t, "cash", gotBody["payment_method"])
	assert.Equal(t, float64(10), gotBody["total"])
	assert.Equal(t, "tmp-1", gotBody["metadata"].(map[string]any)["idempotency_key"])
	items := gotBody["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].(map[string]any)["product_id"])
}

func TestOrders_CreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantCode   ErrorCode
		wantStatus int
		wantMsg    string
	}{
		{
			name: "server_error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"maintenance window"}`))
			},
			wantCode:   ErrCodeStatus,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "maintenance window",
		},
		{
			name: "plain_text_error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "bad gateway", http.StatusBadGateway)
			},
			wantCode:   ErrCodeStatus,
			wantStatus: http.StatusBadGateway,
			wantMsg:    "bad gateway",
		},
		{
			name: "missing_id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			},
			wantCode: ErrCodeDecode,
			wantMsg:  "no order id",
		},
		{
			name: "not_json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantCode: ErrCodeDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/orders", tt.handler)
			srv := newTestServer(t, r)

			_, err := NewOrders(Config{BaseURL: srv.URL, TenantID: "t1"}).Create(context.Background(), testPayload())
			require.Error(t, err)
			assert.True(t, IsTransportError(err))

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantCode, ce.Code)
			assert.Equal(t, tt.wantStatus, ce.StatusCode)
			assert.Equal(t, "create order", ce.Op)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOrders_CreateNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOrders(Config{BaseURL: url, TenantID: "t1"}).Create(context.Background(), testPayload())
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeNetwork, ce.Code)
}

func TestOrders_CreateTimesOut(t *testing.T) {
	release := make(chan struct{})
	r := chi.NewRouter()
	r.Post("/orders", func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	})
	srv := newTestServer(t, r)
	defer close(release)

	start := time.Now()
	_, err := NewOrders(Config{BaseURL: srv.URL, TenantID: "t1", Timeout: 50 * time.Millisecond}).
		Create(context.Background(), testPayload())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeNetwork, ce.Code)
}

func TestOrders_Get(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/orders/{reference}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "t1", req.Header.Get("X-Tenant-ID"))
		ref := chi.URLParam(req, "reference")
		if ref != "o1" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"completed","paymentStatus":"paid","paymentUrl":"https://pay/o1","note":"done"}`))
	})
	srv := newTestServer(t, r)
	c := NewOrders(Config{BaseURL: srv.URL, TenantID: "t1"})

	o, err := c.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID, "id falls back to the requested reference")
	assert.Equal(t, "completed", o.Status())
	assert.Equal(t, "paid", o.PaymentStatus())
	assert.Equal(t, "https://pay/o1", o.PaymentURL())
	assert.Equal(t, "done", o.Fields.String("note"))

	_, err = c.Get(context.Background(), "o2")
	assert.True(t, IsNotFound(err))
}

func TestPayments_Settle(t *testing.T) {
	var got SettleRequest
	r := chi.NewRouter()
	r.Post("/payments", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"requires_action","payment_url":"https://pay/o1"}`))
	})
	srv := newTestServer(t, r)

	p, err := NewPayments(Config{BaseURL: srv.URL, TenantID: "t1"}).
		Settle(context.Background(), SettleRequest{OrderID: "o1", Method: "card", Amount: 10.5})
	require.NoError(t, err)

	assert.Equal(t, SettleRequest{OrderID: "o1", Method: "card", Amount: 10.5}, got)
	assert.Equal(t, "requires_action", p.Status)
	assert.Equal(t, "https://pay/o1", p.PaymentURL)
}

func TestPayments_SettleDeclined(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/payments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"card declined"}`))
	})
	srv := newTestServer(t, r)

	_, err := NewPayments(Config{BaseURL: srv.URL, TenantID: "t1"}).
		Settle(context.Background(), SettleRequest{OrderID: "o1", Method: "card", Amount: 10})
	require.Error(t, err)
	assert.Equal(t, "settle payment: card declined (HTTP 402)", err.Error())
}
