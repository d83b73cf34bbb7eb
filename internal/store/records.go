package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/roach88/tillsync/internal/order"
)

// Record schemas. Anything extra is tolerated; anything missing or of the
// wrong type drops the record.
const queuedOrderSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tempId", "payload", "createdAt", "attempts"],
  "properties": {
    "tempId": { "type": "string", "minLength": 1 },
    "createdAt": { "type": "string", "format": "date-time" },
    "attempts": { "type": "integer", "minimum": 0 },
    "lastError": { "type": "string" },
    "payload": {
      "type": "object",
      "required": ["items", "payment_method", "total"],
      "properties": {
        "payment_method": { "type": "string" },
        "total": { "type": "number" },
        "customer_id": { "type": "string" },
        "offline": { "type": "boolean" },
        "metadata": { "type": "object" },
        "items": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["product_id", "quantity", "unit_price", "line_total"],
            "properties": {
              "product_id": { "type": "string" },
              "name": { "type": "string" },
              "quantity": { "type": "integer" },
              "unit_price": { "type": "number" },
              "line_total": { "type": "number" }
            }
          }
        }
      }
    }
  }
}`

const historyEntrySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "status", "paymentMethod", "total", "createdAt", "offline"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "reference": { "type": "string" },
    "status": { "type": "string" },
    "paymentStatus": { "type": "string" },
    "paymentMethod": { "type": "string" },
    "total": { "type": "number" },
    "createdAt": { "type": "string", "format": "date-time" },
    "offline": { "type": "boolean" },
    "tempId": { "type": "string" },
    "paymentUrl": { "type": "string" },
    "note": { "type": "string" },
    "syncedAt": { "type": "string", "format": "date-time" }
  }
}`

var (
	queuedOrderValidator  = mustSchema(queuedOrderSchema)
	historyEntryValidator = mustSchema(historyEntrySchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("store: invalid record schema: %v", err))
	}
	return schema
}

// validateRecord checks one raw JSON record against schema.
func validateRecord(schema *gojsonschema.Schema, raw json.RawMessage) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate record: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid record: %s", strings.Join(msgs, "; "))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// decodeQueuedOrder validates and decodes one queue record.
func decodeQueuedOrder(raw json.RawMessage) (order.QueuedOrder, error) {
	if err := validateRecord(queuedOrderValidator, raw); err != nil {
		return order.QueuedOrder{}, err
	}
	var q order.QueuedOrder
	if err := json.Unmarshal(raw, &q); err != nil {
		return order.QueuedOrder{}, fmt.Errorf("decode queued order: %w", err)
	}
	if !finite(q.Payload.Total) {
		return order.QueuedOrder{}, fmt.Errorf("queued order %s: non-finite total", q.TempID)
	}
	for _, item := range q.Payload.Items {
		if !finite(item.UnitPrice) || !finite(item.LineTotal) {
			return order.QueuedOrder{}, fmt.Errorf("queued order %s: non-finite line amount", q.TempID)
		}
	}
	return q, nil
}

// decodeHistoryEntry validates and decodes one history record.
func decodeHistoryEntry(raw json.RawMessage) (order.HistoryEntry, error) {
	if err := validateRecord(historyEntryValidator, raw); err != nil {
		return order.HistoryEntry{}, err
	}
	var e order.HistoryEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return order.HistoryEntry{}, fmt.Errorf("decode history entry: %w", err)
	}
	if !finite(e.Total) {
		return order.HistoryEntry{}, fmt.Errorf("history entry %s: non-finite total", e.ID)
	}
	return e, nil
}
