package conditional

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NotReceived is shown in status text for a value that never arrived.
const NotReceived = "n/a"

// FormatValue renders a bus value for status text. Numbers use the
// shortest representation that round-trips, switching to exponent form
// only for very large or very small magnitudes.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	}
	if f, ok := toFloat64(v); ok {
		return formatFloat(f)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		// 'g' pads the exponent to two digits: 1e-07 becomes 1e-7.
		mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'g', -1, 64), "e")
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseOutput resolves a configured output: valid JSON yields the decoded
// value, anything else is returned verbatim.
func ParseOutput(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
