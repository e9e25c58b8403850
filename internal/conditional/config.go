package conditional

import (
	"errors"
	"fmt"
	"time"
)

// Config is the evaluator part of an input node's configuration.
type Config struct {
	ConditionalMode   bool      `json:"conditional_mode" yaml:"conditional_mode"`
	Condition1        Condition `json:"condition1" yaml:"condition1"`
	Condition2Enabled bool      `json:"condition2_enabled" yaml:"condition2_enabled"`
	Condition2        Condition `json:"condition2" yaml:"condition2"`
	LogicOperator     Logic     `json:"logic_operator" yaml:"logic_operator"`

	// OutputTrue and OutputFalse are parsed as JSON when possible. Empty
	// means the boolean result itself.
	OutputTrue  string `json:"output_true" yaml:"output_true"`
	OutputFalse string `json:"output_false" yaml:"output_false"`

	// DebounceMS is filled in by the owning node, which applies the
	// runtime default when its config leaves it out.
	DebounceMS int `json:"-" yaml:"-"`
}

// Validate checks operators and the debounce. Condition 2 and the logic
// operator are only checked when condition 2 is enabled.
func (c *Config) Validate() error {
	if !c.ConditionalMode {
		return nil
	}

	var errs []error
	if _, err := ParseOperator(string(c.Condition1.Operator)); err != nil {
		errs = append(errs, fmt.Errorf("condition1: %w", err))
	}
	if c.Condition2Enabled {
		if _, err := ParseOperator(string(c.Condition2.Operator)); err != nil {
			errs = append(errs, fmt.Errorf("condition2: %w", err))
		}
		if _, err := ParseLogic(string(c.LogicOperator)); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidDebounce, c.DebounceMS))
	}
	return errors.Join(errs...)
}

// Debounce returns the debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Outputs returns the number of output ports.
func (c *Config) Outputs() int {
	if c.ConditionalMode {
		return 2
	}
	return 1
}

// OutputLabels returns one label per output port.
func (c *Config) OutputLabels() []string {
	if !c.ConditionalMode {
		return []string{"value"}
	}
	return []string{"value", c.Describe()}
}

// Describe renders the condition expression, "> 12.5 AND < 5".
func (c *Config) Describe() string {
	s := c.Condition1.String()
	if c.Condition2Enabled {
		logic, err := ParseLogic(string(c.LogicOperator))
		if err != nil {
			logic = c.LogicOperator
		}
		s += " " + string(logic) + " " + c.Condition2.String()
	}
	return s
}

func (c *Config) payloadFor(result bool) any {
	raw := c.OutputFalse
	if result {
		raw = c.OutputTrue
	}
	if raw == "" {
		return result
	}
	return ParseOutput(raw)
}
