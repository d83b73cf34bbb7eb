package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs a scenario, fails the test on any failed assertion and
// compares the call trace with testdata/golden/<name>.golden.
//
// To update golden files:
//
//	go test ./internal/harness/... -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s failed to run: %v", scenario.Name, err)
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n  %s", scenario.Name, strings.Join(result.Errors, "\n  "))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, []byte(FormatCalls(result.Calls)))
	return result
}

// FormatCalls renders a call trace one call per line.
func FormatCalls(calls []string) string {
	if len(calls) == 0 {
		return "(no calls)\n"
	}
	return strings.Join(calls, "\n") + "\n"
}

// CheckGolden compares a call trace with <dir>/<name>.golden. It is the
// non-test counterpart of RunWithGolden.
func CheckGolden(dir, name string, calls []string) error {
	path := filepath.Join(dir, name+".golden")
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if got := FormatCalls(calls); got != string(want) {
		return fmt.Errorf("call trace differs from %s:\nwant:\n%sgot:\n%s", path, want, got)
	}
	return nil
}

// WriteGolden stores a call trace as <dir>/<name>.golden.
func WriteGolden(dir, name string, calls []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name+".golden"), []byte(FormatCalls(calls)), 0644)
}
