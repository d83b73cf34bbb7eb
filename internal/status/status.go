// Package status classifies free-text order and payment statuses.
//
// Upstream services do not share one vocabulary, so classification is
// substring matching on lower-cased text rather than an enum. Everything in
// this package is pure and safe for concurrent use.
package status

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	orderPendingKeywords   = []string{"pending", "processing", "awaiting", "submitted", "queue"}
	paymentPendingKeywords = []string{"pending", "processing", "awaiting", "requires", "open"}
	terminalKeywords       = []string{
		"complete", "completed", "accepted", "fulfilled",
		"cancel", "cancelled", "void", "voided",
		"declined", "failed", "refunded", "closed",
	}
)

// normalize lower-cases s. A Caser is stateful, so one is built per call.
func normalize(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s names a state after which no further
// transition is expected.
func IsTerminal(s string) bool {
	return containsAny(normalize(s), terminalKeywords)
}

// IsOrderPending reports whether an order status still awaits the backend.
func IsOrderPending(s string) bool {
	return containsAny(normalize(s), orderPendingKeywords)
}

// IsPaymentPending reports whether a payment status still awaits settlement.
func IsPaymentPending(s string) bool {
	return containsAny(normalize(s), paymentPendingKeywords)
}

// NeedsMonitoring reports whether a history entry with the given fields
// should keep receiving status reconciliation.
//
// Offline entries are never monitored: they have no server-side record yet.
func NeedsMonitoring(orderStatus, paymentStatus string, offline bool) bool {
	if offline {
		return false
	}
	if IsOrderPending(orderStatus) {
		return true
	}
	if strings.TrimSpace(paymentStatus) == "" {
		return !IsTerminal(orderStatus)
	}
	return IsPaymentPending(paymentStatus)
}
