// Package pipeline turns one draft sale into a confirmed remote order plus a
// payment-method-specific settlement attempt.
//
// Order and payment are independent remote resources. A failed order create
// is returned to the caller (who queues the sale). A failed settlement never
// undoes the created order: the result carries PaymentError instead.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/order"
)

// OrderCreator creates orders on the order service.
// Implemented by *client.Orders.
type OrderCreator interface {
	Create(ctx context.Context, p order.Payload) (client.Order, error)
}

// PaymentSettler posts settlement attempts to the payment gateway.
// Implemented by *client.Payments.
type PaymentSettler interface {
	Settle(ctx context.Context, req client.SettleRequest) (client.Payment, error)
}

// Result is the outcome of a successful order create.
type Result struct {
	Order        client.Order
	Payment      *client.Payment
	PaymentError string
}

// Pipeline submits sales.
type Pipeline struct {
	orders   OrderCreator
	payments PaymentSettler
	now      func() time.Time
}

// New creates a Pipeline.
func New(orders OrderCreator, payments PaymentSettler) *Pipeline {
	return &Pipeline{orders: orders, payments: payments, now: time.Now}
}

// WithClock returns a copy of p that stamps entries using now.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	c := *p
	c.now = now
	return &c
}

// Submit creates the order and then settles its payment.
// The only error returned is the order-create failure.
func (p *Pipeline) Submit(ctx context.Context, payload order.Payload) (Result, error) {
	created, err := p.orders.Create(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("submit order: %w", err)
	}

	res := Result{Order: created}
	payment, err := p.SettlePayment(ctx, created.ID, payload.PaymentMethod, payload.Total)
	if err != nil {
		slog.Warn("payment settlement failed, order stands",
			"order_id", created.ID,
			"method", payload.PaymentMethod,
			"error", err,
		)
		res.PaymentError = err.Error()
		return res, nil
	}
	res.Payment = &payment
	return res, nil
}

// SettlePayment settles cash locally and sends every other method to the
// payment gateway. Amounts are rounded to cents.
func (p *Pipeline) SettlePayment(ctx context.Context, orderID, method string, amount float64) (client.Payment, error) {
	if strings.EqualFold(method, order.MethodCash) {
		return client.Payment{Status: order.PaymentPaid}, nil
	}
	if p.payments == nil {
		return client.Payment{}, fmt.Errorf("settle payment: no payment gateway configured for method %q", method)
	}
	return p.payments.Settle(ctx, client.SettleRequest{
		OrderID: orderID,
		Method:  method,
		Amount:  RoundAmount(amount),
	})
}

// RoundAmount rounds a money amount to 2 decimal places, half away from zero.
func RoundAmount(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// Entry builds the history entry for a sale from a successful Result.
// base carries the sale's temp id, total, method and createdAt.
func (p *Pipeline) Entry(base order.HistoryEntry, res Result) order.HistoryEntry {
	e := base
	e.ID = res.Order.ID
	e.Reference = res.Order.ID
	e.Offline = false
	e.Status = res.Order.Status()
	if e.Status == "" {
		e.Status = order.StatusSubmitted
	}
	e.PaymentStatus = res.Order.PaymentStatus()
	e.PaymentURL = res.Order.PaymentURL()
	e.Note = res.Order.Fields.String("note")

	if res.Payment != nil {
		if res.Payment.Status != "" {
			e.PaymentStatus = res.Payment.Status
		}
		if res.Payment.PaymentURL != "" {
			e.PaymentURL = res.Payment.PaymentURL
		}
	}
	if res.PaymentError != "" {
		e.Note = "Payment error: " + res.PaymentError
	}

	synced := p.now()
	e.SyncedAt = &synced
	return e
}
