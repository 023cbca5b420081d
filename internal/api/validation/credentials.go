package validation

import (
	"encoding/json"
	"strings"
)

// CredentialsRequest mirrors the fields of POST /update-credentials.
type CredentialsRequest struct {
	Host     string
	Port     json.Number
	Database string
	User     string
	Password string
}

// ValidateCredentialsRequest checks the target fields and returns the parsed
// port. An empty port means the default.
func ValidateCredentialsRequest(req CredentialsRequest) (int, []FieldError) {
	var errs []FieldError

	if strings.TrimSpace(req.Host) == "" {
		errs = append(errs, FieldError{Field: "host", Message: "host is required"})
	} else if strings.ContainsAny(req.Host, " /?#@") {
		errs = append(errs, FieldError{Field: "host", Message: "host must be a hostname or IP address"})
	}

	var port int
	if req.Port != "" {
		p, err := parseInt(req.Port)
		switch {
		case err != nil:
			errs = append(errs, FieldError{Field: "port", Message: "port must be an integer"})
		case p < 1 || p > 65535:
			errs = append(errs, FieldError{Field: "port", Message: "port must be between 1 and 65535"})
		default:
			port = p
		}
	}

	if strings.TrimSpace(req.Database) == "" {
		errs = append(errs, FieldError{Field: "database", Message: "database is required"})
	}
	if strings.TrimSpace(req.User) == "" {
		errs = append(errs, FieldError{Field: "user", Message: "user is required"})
	}

	return port, errs
}
