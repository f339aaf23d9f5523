package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// Scenario defines one replayable sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the starting instant, in any format order.ParseTimestamp accepts.
	Now string `yaml:"now"`

	// Snapshot seeds the store before the first step.
	Snapshot []OrderDoc `yaml:"snapshot,omitempty"`

	// Steps run in order on a single timeline.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// OrderDoc is an order written the way the backend serialises it. It is
// converted through JSON so scenario files exercise the real decoder.
type OrderDoc map[string]any

// Order decodes the document.
func (d OrderDoc) Order() (order.Order, error) {
	data, err := json.Marshal(map[string]any(d))
	if err != nil {
		return order.Order{}, err
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// Step is one timeline event. Exactly one field must be set.
type Step struct {
	// Frame is delivered verbatim, so it may be malformed on purpose.
	Frame string `yaml:"frame,omitempty"`

	// Push is encoded as JSON and delivered as a frame.
	Push map[string]any `yaml:"push,omitempty"`

	// Snapshot replaces the whole store. An empty list clears it.
	Snapshot *[]OrderDoc `yaml:"snapshot,omitempty"`

	// Mutate toggles one item through the mutation client.
	Mutate *MutateStep `yaml:"mutate,omitempty"`

	// Advance moves the clock, e.g. "90s".
	Advance string `yaml:"advance,omitempty"`
}

// MutateStep is a setItemDone call. A non-empty Reject makes the remote
// fail with that message.
type MutateStep struct {
	Order  string `yaml:"order"`
	Item   int64  `yaml:"item"`
	Done   bool   `yaml:"done"`
	Reject string `yaml:"reject,omitempty"`
}

func (s Step) kind() string {
	var kinds []string
	if s.Frame != "" {
		kinds = append(kinds, "frame")
	}
	if s.Push != nil {
		kinds = append(kinds, "push")
	}
	if s.Snapshot != nil {
		kinds = append(kinds, "snapshot")
	}
	if s.Mutate != nil {
		kinds = append(kinds, "mutate")
	}
	if s.Advance != "" {
		kinds = append(kinds, "advance")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates the final state.
type Assertion struct {
	// Type selects the check; see the Assert constants.
	Type string `yaml:"type"`

	// Order is the order id (status, item_done, elapsed).
	Order string `yaml:"order,omitempty"`

	// Item is the item id (item_done).
	Item int64 `yaml:"item,omitempty"`

	// Expect is the expected status (status) or MM:SS timer (elapsed).
	Expect string `yaml:"expect,omitempty"`

	// Done is the expected flag (item_done).
	Done *bool `yaml:"done,omitempty"`

	// Orders is the expected board order (sequence).
	Orders []string `yaml:"orders,omitempty"`

	// Kind is the surfaced frame kind (surfaced).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number (size, surfaced).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus   = "status"
	AssertSequence = "sequence"
	AssertSize     = "size"
	AssertItemDone = "item_done"
	AssertElapsed  = "elapsed"
	AssertSurfaced = "surfaced"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now == "" {
		return fmt.Errorf("now is required")
	}
	if _, err := order.ParseTimestamp(s.Now); err != nil {
		return fmt.Errorf("now: %w", err)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		kind := step.kind()
		if kind == "" {
			return fmt.Errorf("steps[%d]: exactly one of frame, push, snapshot, mutate, advance is required", i)
		}
		if kind == "advance" {
			if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
				return fmt.Errorf("steps[%d]: advance must be a non-negative duration, got %q", i, step.Advance)
			}
		}
		if kind == "mutate" && step.Mutate.Order == "" {
			return fmt.Errorf("steps[%d]: mutate.order is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStatus:
		if a.Order == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: order and expect are required for status", index)
		}
		switch order.Status(a.Expect) {
		case order.StatusNew, order.StatusPrep, order.StatusDone:
		default:
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Expect)
		}
	case AssertSequence:
		// An absent list expects an empty board.
	case AssertSize:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for size", index)
		}
	case AssertItemDone:
		if a.Order == "" || a.Item == 0 || a.Done == nil {
			return fmt.Errorf("assertions[%d]: order, item and done are required for item_done", index)
		}
	case AssertElapsed:
		if a.Order == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: order and expect are required for elapsed", index)
		}
	case AssertSurfaced:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for surfaced", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
