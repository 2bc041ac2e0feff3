package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/subsku/internal/dispatch"
	"github.com/roach88/subsku/internal/platform"
)

// Scenario is one end-to-end test of the event flows.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Setup Setup `yaml:"setup"`

	// Events are dispatched in order, synchronously.
	Events []EventStep `yaml:"events"`

	Assertions []Assertion `yaml:"assertions"`
}

// Setup seeds the stores before any event runs.
type Setup struct {
	Pools     []PoolSetup     `yaml:"pools,omitempty"`
	Platform  platform.State  `yaml:"platform,omitempty"`
	Snapshots []SnapshotSetup `yaml:"snapshots,omitempty"`
}

// PoolSetup creates a pool numbered from 0001: Available sub-units first,
// then Unavailable ones.
type PoolSetup struct {
	SKU         string `yaml:"sku"`
	Available   int    `yaml:"available"`
	Unavailable int    `yaml:"unavailable,omitempty"`
}

// SnapshotSetup seeds one product variant snapshot.
type SnapshotSetup struct {
	ProductID   string `yaml:"product_id"`
	SKU         string `yaml:"sku"`
	Quantity    int    `yaml:"quantity"`
	WeightGrams int    `yaml:"weight_grams,omitempty"`
}

// EventStep is one delivery.
type EventStep struct {
	dispatch.Envelope `yaml:",inline"`

	// SetInventory updates platform quantities before this event runs,
	// standing in for the platform's own stock bookkeeping.
	SetInventory map[string]int `yaml:"set_inventory,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks the outcome of one event. Unset fields are not checked.
type Expect struct {
	Success   *bool `yaml:"success,omitempty"`
	Duplicate *bool `yaml:"duplicate,omitempty"`

	// Statuses maps line item id (or SKU, for product and inventory
	// events) to the expected item status.
	Statuses map[string]string `yaml:"statuses,omitempty"`

	// ErrorContains must appear in the outcome error.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type selects the check:
	//   - "pool": total/available counts for sku
	//   - "pool_absent": no pool exists for sku
	//   - "available_units": exact Available names for sku, ascending
	//   - "ledger": names recorded for order_id (and line_item, if set)
	//   - "processed": a duplicate-guard marker exists for kind/key
	//   - "activity_count": number of activity rows matching reason (and sku)
	Type string `yaml:"type"`

	SKU string `yaml:"sku,omitempty"`

	Total     *int `yaml:"total,omitempty"`
	Available *int `yaml:"available,omitempty"`

	Names []string `yaml:"names,omitempty"`

	OrderID  string `yaml:"order_id,omitempty"`
	LineItem string `yaml:"line_item,omitempty"`

	Kind string `yaml:"kind,omitempty"`
	Key  string `yaml:"key,omitempty"`

	Reason string `yaml:"reason,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertPool           = "pool"
	AssertPoolAbsent     = "pool_absent"
	AssertAvailableUnits = "available_units"
	AssertLedger         = "ledger"
	AssertProcessed      = "processed"
	AssertActivityCount  = "activity_count"
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

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
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

// FindScenarios lists *.yaml and *.yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, p := range s.Setup.Pools {
		if p.SKU == "" {
			return fmt.Errorf("setup.pools[%d]: sku is required", i)
		}
		if p.Available < 0 || p.Unavailable < 0 {
			return fmt.Errorf("setup.pools[%d]: counts must be non-negative", i)
		}
	}
	for i, sn := range s.Setup.Snapshots {
		if sn.ProductID == "" || sn.SKU == "" {
			return fmt.Errorf("setup.snapshots[%d]: product_id and sku are required", i)
		}
	}

	for i, ev := range s.Events {
		if ev.Topic == "" {
			return fmt.Errorf("events[%d]: topic is required", i)
		}
		if ev.Payload == nil {
			return fmt.Errorf("events[%d]: payload is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPool:
		if a.SKU == "" {
			return fmt.Errorf("assertions[%d]: sku is required for pool", index)
		}
		if a.Total == nil && a.Available == nil {
			return fmt.Errorf("assertions[%d]: total or available is required for pool", index)
		}
	case AssertPoolAbsent, AssertAvailableUnits:
		if a.SKU == "" {
			return fmt.Errorf("assertions[%d]: sku is required for %s", index, a.Type)
		}
	case AssertLedger:
		if a.OrderID == "" {
			return fmt.Errorf("assertions[%d]: order_id is required for ledger", index)
		}
	case AssertProcessed:
		if a.Kind == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: kind and key are required for processed", index)
		}
	case AssertActivityCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for activity_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
