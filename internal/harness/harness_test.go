package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			RunWithGolden(t, scenario)
		})
	}
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	online := false
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Every check here is deliberately wrong",
		Online:      &online,
		Steps: []Step{{
			Submit: &SubmitStep{Draft: map[string]any{
				"items":          []any{map[string]any{"product_id": "p1", "quantity": 1, "unit_price": 2, "line_total": 2}},
				"payment_method": "cash",
				"total":          2,
			}},
			Expect: map[string]any{"status": "submitted"},
		}},
		Assertions: []Assertion{
			{Type: AssertQueueCount, Count: 0},
			{Type: AssertHistory, Key: "tmp-1", Expect: map[string]any{"offline": false}},
			{Type: AssertCallCount, Call: "POST /orders", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0] expect: status: expected submitted, got queued")
	assert.Contains(t, result.Errors[1], "queue_count: expected 0, got 1")
	assert.Contains(t, result.Errors[2], "offline: expected false, got true")
	assert.Contains(t, result.Errors[3], "call_count: expected 1, got 0")
	assert.Empty(t, result.Calls)
	assert.Len(t, result.Queue, 1)
}

func TestScenarioIDs(t *testing.T) {
	s := &Scenario{Steps: []Step{
		{Submit: &SubmitStep{}},
		{Retry: true},
		{Submit: &SubmitStep{}},
	}}
	assert.Equal(t, []string{"tmp-1", "tmp-2"}, scenarioIDs(s))

	s.IDs = []string{"a"}
	assert.Equal(t, []string{"a"}, scenarioIDs(s))
}

func TestSubsetMismatch(t *testing.T) {
	got := map[string]any{
		"status": "queued",
		"count":  2,
		"payload": map[string]any{
			"offline":  true,
			"metadata": map[string]any{"idempotency_key": "tmp-1"},
		},
	}

	tests := []struct {
		name string
		want map[string]any
		msg  string
	}{
		{"matching subset", map[string]any{"status": "queued"}, ""},
		{"numbers compare across types", map[string]any{"count": 2.0}, ""},
		{"nested subset", map[string]any{"payload": map[string]any{"metadata": map[string]any{"idempotency_key": "tmp-1"}}}, ""},
		{"nil matches absent", map[string]any{"lastError": nil}, ""},
		{"value mismatch", map[string]any{"status": "sent"}, "status: expected sent, got queued"},
		{"nested mismatch", map[string]any{"payload": map[string]any{"offline": false}}, "payload.offline: expected false, got true"},
		{"missing field", map[string]any{"order": "o1"}, "order: field missing"},
		{"object expected", map[string]any{"status": map[string]any{"a": 1}}, "status: expected an object, got queued"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, subsetMismatch(tt.want, got))
		})
	}
}

func TestCallOrderMismatch(t *testing.T) {
	calls := []string{"POST /orders a", "GET /orders/o1", "POST /payments b"}

	assert.Empty(t, callOrderMismatch([]string{"POST /orders", "POST /payments"}, calls))
	assert.Empty(t, callOrderMismatch([]string{"GET"}, calls))
	assert.Contains(t, callOrderMismatch([]string{"POST /payments", "POST /orders"}, calls), `call "POST /orders" not found in order`)
}

func TestFormatCalls(t *testing.T) {
	assert.Equal(t, "(no calls)\n", FormatCalls(nil))
	assert.Equal(t, "a\nb\n", FormatCalls([]string{"a", "b"}))
}

func TestGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	calls := []string{"POST /orders {}", "GET /orders/o1"}

	require.Error(t, CheckGolden(dir, "s", calls))
	require.NoError(t, WriteGolden(dir, "s", calls))
	require.NoError(t, CheckGolden(dir, "s", calls))

	err := CheckGolden(dir, "s", calls[:1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call trace differs")
}
