package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the connectivity state at session start. Defaults to true.
	Online *bool `yaml:"online,omitempty"`

	// IDs are the temp ids handed out to submitted sales, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Service is the initial behavior of the scripted order service.
	Service *ServiceStep `yaml:"service,omitempty"`

	// Steps run in order against the session.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state and the call trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one action field must be set.
type Step struct {
	Submit    *SubmitStep    `yaml:"submit,omitempty"`
	SetOnline *bool          `yaml:"set_online,omitempty"`
	Retry     bool           `yaml:"retry,omitempty"`
	Refresh   bool           `yaml:"refresh,omitempty"`
	Push      map[string]any `yaml:"push,omitempty"`
	Reload    bool           `yaml:"reload,omitempty"`
	Service   *ServiceStep   `yaml:"service,omitempty"`

	// Expect is a subset match against the step result (submit, retry,
	// refresh only).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// SubmitStep records a sale.
type SubmitStep struct {
	Draft        map[string]any `yaml:"draft"`
	ForceOffline bool           `yaml:"force_offline,omitempty"`
}

// ServiceStep changes how the scripted order service answers.
type ServiceStep struct {
	// CreateStatus, when non-zero, is returned by POST /orders instead of
	// creating the order.
	CreateStatus int `yaml:"create_status,omitempty"`

	// PaymentStatus, when non-zero, is returned by POST /payments.
	PaymentStatus int `yaml:"payment_status,omitempty"`

	// Orders sets the body served by GET /orders/{id}.
	Orders map[string]map[string]any `yaml:"orders,omitempty"`
}

// Assertion checks final state or the call trace.
type Assertion struct {
	Type   string         `yaml:"type"`
	Key    string         `yaml:"key,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	Call   string         `yaml:"call,omitempty"`
	Calls  []string       `yaml:"calls,omitempty"`
}

// Assertion type constants.
const (
	AssertQueueCount     = "queue_count"
	AssertQueued         = "queued"
	AssertHistoryCount   = "history_count"
	AssertHistory        = "history"
	AssertMonitoredCount = "monitored_count"
	AssertCallCount      = "call_count"
	AssertCallOrder      = "call_order"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) startsOnline() bool {
	return s.Online == nil || *s.Online
}

func (s *Scenario) usesPush() bool {
	for _, step := range s.Steps {
		if step.Push != nil {
			return true
		}
	}
	return false
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if n := step.actionCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, found %d", i, n)
		}
		if step.Submit != nil && len(step.Submit.Draft) == 0 {
			return fmt.Errorf("steps[%d]: submit.draft is required", i)
		}
		if step.Expect != nil && step.Submit == nil && !step.Retry && !step.Refresh {
			return fmt.Errorf("steps[%d]: expect is only allowed on submit, retry and refresh", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func (st Step) actionCount() int {
	n := 0
	for _, set := range []bool{
		st.Submit != nil,
		st.SetOnline != nil,
		st.Retry,
		st.Refresh,
		st.Push != nil,
		st.Reload,
		st.Service != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertQueueCount, AssertHistoryCount, AssertMonitoredCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertQueued, AssertHistory:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertCallCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
