// Package reconcile keeps unresolved sales fresh from two channels: a
// WebSocket push feed and a polling fallback. Both turn what the server says
// into a history.Update and hand it to the same reducer.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/tillsync/internal/client"
	"github.com/roach88/tillsync/internal/history"
)

// Applier merges one update into the history list.
// Implemented by *history.Book.
type Applier interface {
	Apply(ctx context.Context, u history.Update) bool
}

var (
	idKeys            = []string{"orderId", "id", "order_id"}
	paymentStatusKeys = []string{"paymentStatus", "payment_status"}
	paymentURLKeys    = []string{"paymentUrl", "payment_url"}
)

// ParseMessage decodes one push message. A message must be a JSON object
// carrying an order identifier.
func ParseMessage(data []byte) (history.Update, error) {
	var f client.Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return history.Update{}, fmt.Errorf("decode push message: %w", err)
	}
	if f == nil {
		return history.Update{}, fmt.Errorf("decode push message: not an object")
	}
	u := history.Update{Key: identifier(f, idKeys...)}
	if u.Key == "" {
		return history.Update{}, fmt.Errorf("push message has no order id")
	}
	u.Status = present(f, "status")
	u.PaymentStatus = present(f, paymentStatusKeys...)
	u.PaymentURL = present(f, paymentURLKeys...)
	u.Note = present(f, "note", "message")
	return u, nil
}

// FromOrder builds the update for an entry polled by reference.
func FromOrder(reference string, o client.Order) history.Update {
	return history.Update{
		Key:           reference,
		Status:        present(o.Fields, "status"),
		PaymentStatus: present(o.Fields, "payment_status", "paymentStatus"),
		PaymentURL:    present(o.Fields, "payment_url", "paymentUrl"),
		Note:          present(o.Fields, "note"),
	}
}

// present returns the first string value among keys, or nil if none is set.
func present(f client.Fields, keys ...string) *string {
	for _, k := range keys {
		if s, ok := f[k].(string); ok {
			return &s
		}
	}
	return nil
}

func identifier(f client.Fields, keys ...string) string {
	for _, k := range keys {
		switch v := f[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
