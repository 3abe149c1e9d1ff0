package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docquery/internal/model"
)

// Backend names accepted in a scenario.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Fixture names accepted in a scenario.
const (
	FixtureProjects   = "projects"
	FixtureTags       = "tags"
	FixtureCategories = "categories"
)

// Scenario is one harness run: seed data, models and query steps.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the store. Defaults to memory.
	Backend string `yaml:"backend,omitempty"`

	// Fixtures names built-in seed sets to insert.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Documents are extra seed documents keyed by collection.
	Documents map[string][]map[string]any `yaml:"documents,omitempty"`

	// Models are registered before any step runs.
	Models []model.Spec `yaml:"models"`

	// Schemas are CUE sources steps may validate against, keyed by name.
	Schemas map[string]string `yaml:"schemas,omitempty"`

	// Steps run in order against the same store.
	Steps []Step `yaml:"steps"`
}

// Step runs one query.
type Step struct {
	Name    string         `yaml:"name"`
	Model   string         `yaml:"model"`
	Query   map[string]any `yaml:"query"`
	Options *StepOptions   `yaml:"options,omitempty"`
	Expect  Expect         `yaml:"expect"`
}

// StepOptions mirrors compiler.Options. Schema names an entry of
// Scenario.Schemas.
type StepOptions struct {
	Sort     any    `yaml:"sort,omitempty"`
	Skip     any    `yaml:"skip,omitempty"`
	Limit    any    `yaml:"limit,omitempty"`
	Fields   any    `yaml:"fields,omitempty"`
	Populate any    `yaml:"populate,omitempty"`
	Schema   string `yaml:"schema,omitempty"`
}

// Expect lists the checks applied to a step's outcome. Unset fields are
// not checked.
type Expect struct {
	// Error is the expected error kind (for example notSupportedQueryType)
	// or a substring of the error message.
	Error string `yaml:"error,omitempty"`

	// Type is the effective query type.
	Type string `yaml:"type,omitempty"`

	// Shape is the result shape (rows, document, total, rowsTotal, tree,
	// roots, value).
	Shape string `yaml:"shape,omitempty"`

	// Count is the number of rows, roots or tree entries.
	Count *int `yaml:"count,omitempty"`

	// Total is the count for total and allTotal.
	Total *int64 `yaml:"total,omitempty"`

	// Pluck maps a field to the expected values, in order, across the
	// rows or roots.
	Pluck map[string][]any `yaml:"pluck,omitempty"`

	// Rows are matched by position; each entry is a subset match.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Doc is a subset match against the single document.
	Doc map[string]any `yaml:"doc,omitempty"`

	// Null expects a one query that matched nothing.
	Null bool `yaml:"null,omitempty"`

	// Value is compared with a hook's value.
	Value any `yaml:"value,omitempty"`
}

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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Backend {
	case "", BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}

	for _, f := range s.Fixtures {
		if !slices.Contains([]string{FixtureProjects, FixtureTags, FixtureCategories}, f) {
			return fmt.Errorf("unknown fixture %q", f)
		}
	}

	if len(s.Models) == 0 {
		return fmt.Errorf("models list is required and must be non-empty")
	}
	names := make(map[string]bool, len(s.Models))
	for i, m := range s.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if names[m.Name] {
			return fmt.Errorf("models[%d]: duplicate model %q", i, m.Name)
		}
		names[m.Name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if !names[step.Model] {
			return fmt.Errorf("steps[%d]: unknown model %q", i, step.Model)
		}
		if step.Options != nil && step.Options.Schema != "" {
			if _, ok := s.Schemas[step.Options.Schema]; !ok {
				return fmt.Errorf("steps[%d]: unknown schema %q", i, step.Options.Schema)
			}
		}
	}
	return nil
}
