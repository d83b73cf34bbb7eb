// Package order defines the sale records the sync engine moves around.
//
// Three shapes exist for one logical sale:
//   - Draft: what the till hands over at checkout. Immutable once accepted.
//   - QueuedOrder: a draft waiting locally for a successful remote submission.
//   - HistoryEntry: the operator-visible record of a sale and its latest
//     known order/payment status.
//
// A sale is identified by its temp id until the order service assigns a
// reference. HistoryEntry.Matches accepts either key.
package order
