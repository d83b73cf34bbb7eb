// Package session is the surface the till UI talks to.
//
// A Session is created when a cashier signs in and closed when they sign
// out. It owns the durable store, the offline queue, the recent-order
// history and the background reconciliation loops, and exposes:
//
//   - SubmitOrder, which never fails because of the network
//   - RetryQueue and RefreshOrderStatuses for operator-triggered syncs
//   - QueuedOrders, RecentOrders, IsOnline and IsSyncing as readable state,
//     with Subscribe to learn when any of them changes
//
// Close stops the background loops and waits for any drain in flight; a
// submission that has started is always allowed to finish.
package session
