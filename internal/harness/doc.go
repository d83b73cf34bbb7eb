// Package harness runs till conformance scenarios.
//
// A scenario drives a real session against a scripted order service and
// then checks the resulting queue, history and remote calls. Every run uses
// a fresh database, fixed temp ids and a frozen clock, so the recorded call
// trace is identical across runs and can be compared to a golden file.
//
// # Scenario Format
//
//	name: offline_sale_replayed
//	description: "A sale queued offline is sent once connectivity returns"
//	online: false
//	ids: [tmp-1]
//	service:
//	  create_status: 0          # non-zero makes POST /orders fail
//	steps:
//	  - submit:
//	      draft: { items: [...], payment_method: cash, total: 10 }
//	    expect: { status: queued, queuedCount: 1 }
//	  - set_online: true
//	  - retry: true
//	    expect: { submitted: 1, remaining: 0 }
//	  - push: { orderId: o1, status: completed }
//	  - refresh: true
//	  - reload: true            # close and reopen over the same database
//	  - service: { orders: { o1: { status: completed } } }
//	assertions:
//	  - type: queue_count
//	    count: 0
//	  - type: history
//	    key: o1
//	    expect: { status: completed, offline: false }
//	  - type: call_count
//	    call: POST /orders
//	    count: 1
//
// Expect clauses are subset matches against the JSON form of the step
// result: only the listed fields are compared.
//
// # Assertion Types
//
//   - queue_count: number of queued sales
//   - queued: fields of the queued sale with the given temp id
//   - history_count: number of history entries
//   - history: fields of the history entry matching key
//   - monitored_count: number of entries still awaiting a final status
//   - call_count: number of remote calls starting with call
//   - call_order: remote calls, by prefix, in the order listed
package harness
