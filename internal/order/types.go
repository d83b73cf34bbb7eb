package order

import (
	"math"
	"time"
)

// Display statuses written by the engine itself. Everything else in
// HistoryEntry.Status comes from the order service.
const (
	StatusQueued     = "Queued (offline)"
	StatusSubmitting = "Submitting"
	StatusSubmitted  = "submitted"
)

// PaymentPaid is the settlement status reported for cash sales.
const PaymentPaid = "paid"

// MethodCash settles locally; every other method goes to the payment gateway.
const MethodCash = "cash"

// IdempotencyKeyField is the metadata key carrying the client-side dedup key.
const IdempotencyKeyField = "idempotency_key"

// LineItem is one cart line.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// Draft is a cashier-entered sale not yet acknowledged by any backend.
type Draft struct {
	Items         []LineItem     `json:"items"`
	PaymentMethod string         `json:"payment_method"`
	Total         float64        `json:"total"`
	CustomerID    string         `json:"customer_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no slices or maps with d.
func (d Draft) Clone() Draft {
	c := d
	if d.Items != nil {
		c.Items = make([]LineItem, len(d.Items))
		copy(c.Items, d.Items)
	}
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// WithIdempotencyKey returns a clone of d whose metadata carries key, unless
// the caller already supplied an idempotency key.
func (d Draft) WithIdempotencyKey(key string) Draft {
	c := d.Clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any, 1)
	}
	if existing, ok := c.Metadata[IdempotencyKeyField].(string); ok && existing != "" {
		return c
	}
	c.Metadata[IdempotencyKeyField] = key
	return c
}

// Payload is the body posted to the order service.
type Payload struct {
	Draft
	Offline bool `json:"offline"`
}

// QueuedOrder is a draft persisted locally because immediate submission was
// skipped or failed. It leaves the queue only after a confirmed remote create.
type QueuedOrder struct {
	TempID    string    `json:"tempId"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
}

// HistoryEntry is the operator-visible record of one sale.
type HistoryEntry struct {
	ID            string     `json:"id"`
	Reference     string     `json:"reference,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"paymentStatus,omitempty"`
	PaymentMethod string     `json:"paymentMethod"`
	Total         float64    `json:"total"`
	CreatedAt     time.Time  `json:"createdAt"`
	Offline       bool       `json:"offline"`
	TempID        string     `json:"tempId,omitempty"`
	PaymentURL    string     `json:"paymentUrl,omitempty"`
	Note          string     `json:"note,omitempty"`
	SyncedAt      *time.Time `json:"syncedAt,omitempty"`
}

// Matches reports whether key identifies this entry, by temp id, server
// reference or id.
func (e HistoryEntry) Matches(key string) bool {
	if key == "" {
		return false
	}
	return key == e.TempID || key == e.Reference || key == e.ID
}

// Key returns the identifier the entry is currently tracked under: the
// server reference once known, the temp id before that.
func (e HistoryEntry) Key() string {
	if e.Reference != "" {
		return e.Reference
	}
	if e.TempID != "" {
		return e.TempID
	}
	return e.ID
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
