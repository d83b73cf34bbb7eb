package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/order"
)

type fakeOrders struct {
	resp  client.Order
	err   error
	calls []order.Payload
}

func (f *fakeOrders) Create(_ context.Context, p order.Payload) (client.Order, error) {
	f.calls = append(f.calls, p)
	return f.resp, f.err
}

type fakePayments struct {
	resp  client.Payment
	err   error
	calls []client.SettleRequest
}

func (f *fakePayments) Settle(_ context.Context, req client.SettleRequest) (client.Payment, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func payload(method string, total float64) order.Payload {
	return order.Payload{Draft: order.Draft{
		Items:         []order.LineItem{{ProductID: "p1", Quantity: 2, UnitPrice: 5, LineTotal: 10}},
		PaymentMethod: method,
		Total:         total,
	}}
}

func TestSubmit_CashSettlesLocally(t *testing.T) {
	orders := &fakeOrders{resp: client.Order{ID: "o1", Fields: client.Fields{"id": "o1"}}}
	payments := &fakePayments{}
	p := New(orders, payments)

	res, err := p.Submit(context.Background(), payload(order.MethodCash, 10))
	require.NoError(t, err)

	assert.Equal(t, "o1", res.Order.ID)
	require.NotNil(t, res.Payment)
	assert.Equal(t, order.PaymentPaid, res.Payment.Status)
	assert.Empty(t, res.PaymentError)
	assert.Empty(t, payments.calls, "cash never reaches the gateway")
	assert.Len(t, orders.calls, 1)
}

func TestSubmit_CardGoesToGatewayWithRoundedAmount(t *testing.T) {
	orders := &fakeOrders{resp: client.Order{ID: "o2"}}
	payments := &fakePayments{resp: client.Payment{Status: "requires_action", PaymentURL: "https://pay/o2"}}
	p := New(orders, payments)

	res, err := p.Submit(context.Background(), payload("card", 10.005))
	require.NoError(t, err)

	require.Len(t, payments.calls, 1)
	assert.Equal(t, client.SettleRequest{OrderID: "o2", Method: "card", Amount: 10.01}, payments.calls[0])
	require.NotNil(t, res.Payment)
	assert.Equal(t, "https://pay/o2", res.Payment.PaymentURL)
}

func TestSubmit_PaymentFailureKeepsOrder(t *testing.T) {
	orders := &fakeOrders{resp: client.Order{ID: "o3"}}
	payments := &fakePayments{err: &client.Error{Code: client.ErrCodeStatus, Op: "settle payment", StatusCode: 502, Message: "gateway down"}}
	p := New(orders, payments)

	res, err := p.Submit(context.Background(), payload("crypto", 20))
	require.NoError(t, err, "payment failure is not an order failure")

	assert.Equal(t, "o3", res.Order.ID)
	assert.Nil(t, res.Payment)
	assert.Equal(t, "settle payment: gateway down (HTTP 502)", res.PaymentError)
}

func TestSubmit_NoGatewayConfigured(t *testing.T) {
	p := New(&fakeOrders{resp: client.Order{ID: "o4"}}, nil)

	res, err := p.Submit(context.Background(), payload("card", 20))
	require.NoError(t, err)
	assert.Contains(t, res.PaymentError, "no payment gateway configured")
}

func TestSubmit_OrderFailureReturnsTypedError(t *testing.T) {
	orders := &fakeOrders{err: &client.Error{Code: client.ErrCodeNetwork, Op: "create order", Message: "connection refused"}}
	payments := &fakePayments{}
	p := New(orders, payments)

	_, err := p.Submit(context.Background(), payload(order.MethodCash, 10))
	require.Error(t, err)
	assert.True(t, client.IsTransportError(err))
	assert.Empty(t, payments.calls)

	var ce *client.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, client.ErrCodeNetwork, ce.Code)
}

func TestRoundAmount(t *testing.T) {
	assert.Equal(t, 10.0, RoundAmount(10))
	assert.Equal(t, 1.01, RoundAmount(1.005))
	assert.Equal(t, 2.35, RoundAmount(2.345))
	assert.Equal(t, -1.01, RoundAmount(-1.005))
}

func TestEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := New(nil, nil).WithClock(func() time.Time { return now })

	base := order.HistoryEntry{
		ID:            "tmp-1",
		TempID:        "tmp-1",
		Status:        order.StatusQueued,
		PaymentMethod: "card",
		Total:         10,
		Offline:       true,
		Note:          "order service unavailable",
	}

	t.Run("defaults_to_submitted", func(t *testing.T) {
		e := p.Entry(base, Result{Order: client.Order{ID: "o1"}, Payment: &client.Payment{Status: "paid"}})
		assert.Equal(t, "o1", e.ID)
		assert.Equal(t, "o1", e.Reference)
		assert.Equal(t, "tmp-1", e.TempID)
		assert.Equal(t, order.StatusSubmitted, e.Status)
		assert.Equal(t, "paid", e.PaymentStatus)
		assert.False(t, e.Offline)
		assert.Empty(t, e.Note, "stale queue error is cleared")
		require.NotNil(t, e.SyncedAt)
		assert.Equal(t, now, *e.SyncedAt)
	})

	t.Run("order_fields_and_payment_error", func(t *testing.T) {
		res := Result{
			Order: client.Order{ID: "o1", Fields: client.Fields{
				"status":         "processing",
				"payment_status": "pending",
				"paymentUrl":     "https://pay/o1",
			}},
			PaymentError: "settle payment: gateway down",
		}
		e := p.Entry(base, res)
		assert.Equal(t, "processing", e.Status)
		assert.Equal(t, "pending", e.PaymentStatus)
		assert.Equal(t, "https://pay/o1", e.PaymentURL)
		assert.Equal(t, "Payment error: settle payment: gateway down", e.Note)
	})
}
