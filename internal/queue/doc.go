// Package queue owns the till's offline queue: it decides enqueue versus
// submit-now, drains queued sales to the order service, and guarantees the
// queue only shrinks on a confirmed remote create.
//
// Per-item state machine:
//
//	Queued -> Submitting -> Confirmed (removed)
//	                     -> Queued (attempts+1, lastError set)
//
// Submitting is never persisted. A crash mid-submission leaves the item
// Queued and it is retried on the next drain; the idempotency key in the
// payload metadata lets the order service dedup the retry.
//
// Drains are sequential, strictly FIFO and stop on the first failure so a
// failing sale is never overtaken by a younger one from the same till.
package queue
