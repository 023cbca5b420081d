// Package validation checks decoded request bodies before they reach the
// domain services.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// parseInt accepts a JSON number or numeric string holding an integer,
// including integral exponent forms such as 1e2.
func parseInt(n json.Number) (int, error) {
	s := strings.TrimSpace(n.String())
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, fmt.Errorf("out of range")
		}
		return int(i), nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return 0, fmt.Errorf("not a number")
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("out of range")
	}
	return int(f), nil
}
