package client

import (
	"context"
	"encoding/json"
	"net/http"
)

// SettleRequest is the body posted to the payment gateway.
type SettleRequest struct {
	OrderID string  `json:"orderId"`
	Method  string  `json:"method"`
	Amount  float64 `json:"amount"`
}

// Payment is a settlement attempt result.
type Payment struct {
	Status     string
	PaymentURL string
	Fields     Fields
}

// MarshalJSON renders the payment with its normalized fields first.
func (p Payment) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range p.Fields {
		out[k] = v
	}
	out["status"] = p.Status
	if p.PaymentURL != "" {
		out["paymentUrl"] = p.PaymentURL
	}
	return json.Marshal(out)
}

// Payments is the integration gateway client.
type Payments struct {
	r requester
}

// NewPayments creates a payment gateway client.
func NewPayments(cfg Config) *Payments {
	return &Payments{r: newRequester(cfg)}
}

// Settle posts a settlement attempt to POST /payments.
func (c *Payments) Settle(ctx context.Context, req SettleRequest) (Payment, error) {
	fields, err := c.r.do(ctx, "settle payment", http.MethodPost, "/payments", req)
	if err != nil {
		return Payment{}, err
	}
	return Payment{
		Status:     fields.String("status"),
		PaymentURL: fields.String("payment_url", "paymentUrl"),
		Fields:     fields,
	}, nil
}
