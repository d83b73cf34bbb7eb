package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/status"
)

// checkAssertions evaluates every assertion against the final state and
// returns one message per failure.
func checkAssertions(assertions []Assertion, res *Result) []string {
	var failures []string
	for i, a := range assertions {
		if msg := checkAssertion(a, res); msg != "" {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %s", i, a.Type, msg))
		}
	}
	return failures
}

func checkAssertion(a Assertion, res *Result) string {
	switch a.Type {
	case AssertQueueCount:
		return countMismatch(a.Count, len(res.Queue))

	case AssertHistoryCount:
		return countMismatch(a.Count, len(res.History))

	case AssertMonitoredCount:
		n := 0
		for _, e := range res.History {
			if status.NeedsMonitoring(e.Status, e.PaymentStatus, e.Offline) {
				n++
			}
		}
		return countMismatch(a.Count, n)

	case AssertQueued:
		for _, q := range res.Queue {
			if q.TempID == a.Key {
				return subsetMismatch(a.Expect, q)
			}
		}
		return fmt.Sprintf("no queued sale %q", a.Key)

	case AssertHistory:
		e, ok := findEntry(res.History, a.Key)
		if !ok {
			return fmt.Sprintf("no history entry %q", a.Key)
		}
		return subsetMismatch(a.Expect, e)

	case AssertCallCount:
		n := 0
		for _, c := range res.Calls {
			if strings.HasPrefix(c, a.Call) {
				n++
			}
		}
		return countMismatch(a.Count, n)

	case AssertCallOrder:
		return callOrderMismatch(a.Calls, res.Calls)
	}
	return fmt.Sprintf("unknown assertion type %q", a.Type)
}

func countMismatch(want, got int) string {
	if want != got {
		return fmt.Sprintf("expected %d, got %d", want, got)
	}
	return ""
}

func findEntry(entries []order.HistoryEntry, key string) (order.HistoryEntry, bool) {
	for _, e := range entries {
		if e.Matches(key) {
			return e, true
		}
	}
	return order.HistoryEntry{}, false
}

// callOrderMismatch checks that each prefix in want matches a call, in
// order. Unlisted calls in between are allowed.
func callOrderMismatch(want, calls []string) string {
	next := 0
	for _, c := range calls {
		if next < len(want) && strings.HasPrefix(c, want[next]) {
			next++
		}
	}
	if next < len(want) {
		return fmt.Sprintf("call %q not found in order (calls: %v)", want[next], calls)
	}
	return ""
}

// subsetMismatch compares the listed fields of want against the JSON form
// of got. Nested objects are compared the same way.
func subsetMismatch(want map[string]any, got any) string {
	wantNorm, err := normalize(want)
	if err != nil {
		return fmt.Sprintf("encode expectation: %v", err)
	}
	gotNorm, err := normalize(got)
	if err != nil {
		return fmt.Sprintf("encode result: %v", err)
	}
	return subset("", wantNorm, gotNorm)
}

// normalize round-trips v through JSON so YAML ints and Go floats compare
// equal.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func subset(path string, want, got any) string {
	wantMap, ok := want.(map[string]any)
	if !ok {
		if !reflect.DeepEqual(want, got) {
			return fmt.Sprintf("%s: expected %v, got %v", displayPath(path), want, got)
		}
		return ""
	}
	gotMap, ok := got.(map[string]any)
	if !ok {
		return fmt.Sprintf("%s: expected an object, got %v", displayPath(path), got)
	}
	for k, w := range wantMap {
		g, present := gotMap[k]
		if !present {
			if w == nil {
				continue
			}
			return fmt.Sprintf("%s: field missing", displayPath(path+"."+k))
		}
		if msg := subset(path+"."+k, w, g); msg != "" {
			return msg
		}
	}
	return ""
}

func displayPath(path string) string {
	if path == "" {
		return "result"
	}
	return strings.TrimPrefix(path, ".")
}
