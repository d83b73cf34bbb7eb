package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/roach88/tillsync/internal/order"
)

// Order is the order service's view of a sale.
type Order struct {
	ID     string
	Fields Fields
}

// Status returns the order status, if reported.
func (o Order) Status() string { return o.Fields.String("status") }

// PaymentStatus returns the payment status, if reported.
func (o Order) PaymentStatus() string { return o.Fields.String("payment_status", "paymentStatus") }

// PaymentURL returns the settlement redirect URL, if reported.
func (o Order) PaymentURL() string { return o.Fields.String("payment_url", "paymentUrl") }

// MarshalJSON renders the order as the service returned it.
func (o Order) MarshalJSON() ([]byte, error) {
	if o.Fields == nil {
		return json.Marshal(map[string]string{"id": o.ID})
	}
	return json.Marshal(o.Fields)
}

// Orders is the order service client.
type Orders struct {
	r requester
}

// NewOrders creates an order service client.
func NewOrders(cfg Config) *Orders {
	return &Orders{r: newRequester(cfg)}
}

// Create posts a sale to POST /orders. The response must carry a string id.
func (c *Orders) Create(ctx context.Context, p order.Payload) (Order, error) {
	const op = "create order"
	fields, err := c.r.do(ctx, op, http.MethodPost, "/orders", p)
	if err != nil {
		return Order{}, err
	}
	id := fields.String("id")
	if id == "" {
		return Order{}, &Error{Code: ErrCodeDecode, Op: op, Message: "response has no order id"}
	}
	return Order{ID: id, Fields: fields}, nil
}

// Get fetches the latest state of an order from GET /orders/{reference}.
func (c *Orders) Get(ctx context.Context, reference string) (Order, error) {
	fields, err := c.r.do(ctx, "get order", http.MethodGet, "/orders/"+url.PathEscape(reference), nil)
	if err != nil {
		return Order{}, err
	}
	id := fields.String("id")
	if id == "" {
		id = reference
	}
	return Order{ID: id, Fields: fields}, nil
}
