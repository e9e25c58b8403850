package conditional

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// ParseOperator converts a string to an Operator.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
}

// Logic combines the results of two conditions.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic accepts AND/OR in any case. An empty string means AND.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND", "&&":
		return LogicAnd, nil
	case "OR", "||":
		return LogicOr, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLogic, s)
	}
}

// Condition is one comparison against a threshold.
type Condition struct {
	Operator  Operator `json:"operator" yaml:"operator"`
	Threshold any      `json:"threshold" yaml:"threshold"`
}

// String renders the condition, "> 12.5".
func (c Condition) String() string {
	return string(c.Operator) + " " + FormatValue(c.Threshold)
}

// Evaluate reports whether value satisfies the condition.
//
// Numbers (and numeric strings) are compared as float64. Anything else only
// supports == and !=, compared with reflect.DeepEqual. A nil value never
// satisfies an ordering operator.
func (c Condition) Evaluate(value any) bool {
	if value == nil {
		switch c.Operator {
		case OpEqual:
			return c.Threshold == nil
		case OpNotEqual:
			return c.Threshold != nil
		default:
			return false
		}
	}

	target, targetIsNum := toFloat64(c.Threshold)
	v, valueIsNum := toFloat64(value)
	if targetIsNum && valueIsNum {
		return compareFloat(c.Operator, v, target)
	}

	switch c.Operator {
	case OpEqual:
		return reflect.DeepEqual(value, c.Threshold)
	case OpNotEqual:
		return !reflect.DeepEqual(value, c.Threshold)
	default:
		return false
	}
}

func compareFloat(op Operator, value, target float64) bool {
	switch op {
	case OpEqual:
		return value == target
	case OpNotEqual:
		return value != target
	case OpGreater:
		return value > target
	case OpLess:
		return value < target
	case OpGreaterEqual:
		return value >= target
	case OpLessEqual:
		return value <= target
	default:
		return false
	}
}

// toFloat64 converts a value to float64 if possible.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
