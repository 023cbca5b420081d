package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// QueryRequest mirrors the fields of POST /query.
type QueryRequest struct {
	Usernames []string
	Days      json.Number
	Threshold json.Number
}

// ParsedQuery is a QueryRequest with its numeric fields decoded.
type ParsedQuery struct {
	Usernames []string
	Days      int
	Threshold float64
}

// ValidateQueryRequest checks that days is an integer within 1..maxDays and
// that threshold is a non-negative number. A missing threshold means zero.
func ValidateQueryRequest(req QueryRequest, maxDays int) (ParsedQuery, []FieldError) {
	var errs []FieldError
	out := ParsedQuery{Usernames: req.Usernames}

	if req.Usernames == nil {
		errs = append(errs, FieldError{Field: "usernames", Message: "usernames is required"})
	}

	if req.Days == "" {
		errs = append(errs, FieldError{Field: "days", Message: "days is required"})
	} else {
		d, err := parseInt(req.Days)
		switch {
		case err != nil:
			errs = append(errs, FieldError{Field: "days", Message: "days must be an integer"})
		case d < 1 || d > maxDays:
			errs = append(errs, FieldError{Field: "days", Message: fmt.Sprintf("days must be between 1 and %d", maxDays)})
		default:
			out.Days = d
		}
	}

	if req.Threshold != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(req.Threshold.String()), 64)
		switch {
		case err != nil || math.IsNaN(f) || math.IsInf(f, 0):
			errs = append(errs, FieldError{Field: "threshold", Message: "threshold must be a number"})
		case f < 0:
			errs = append(errs, FieldError{Field: "threshold", Message: "threshold must not be negative"})
		default:
			out.Threshold = f
		}
	}

	return out, errs
}
