package posts

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

const (
	// DefaultMaxDays caps the trailing window when no other limit is configured.
	DefaultMaxDays = 365
	// MaxUsernames caps how many authors a single query may select.
	MaxUsernames = 100
)

// Loose shape of a Hive account name. The chain's own rules are stricter.
var usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{0,31}$`)

// Validate reports whether req would be accepted by Run under maxDays.
func (req Request) Validate(maxDays int) error {
	_, err := req.normalize(maxDays)
	return err
}

// normalize validates req and returns a copy with usernames lowercased,
// trimmed, deduplicated and sorted.
func (req Request) normalize(maxDays int) (Request, error) {
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}

	if req.Days < 1 || req.Days > maxDays {
		return Request{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRequest, maxDays)
	}
	if math.IsNaN(req.Threshold) || math.IsInf(req.Threshold, 0) || req.Threshold < 0 {
		return Request{}, fmt.Errorf("%w: threshold must be a non-negative number", ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(req.Usernames))
	names := make([]string, 0, len(req.Usernames))
	for _, raw := range req.Usernames {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "@")))
		if name == "" || seen[name] {
			continue
		}
		if !usernameRegex.MatchString(name) {
			return Request{}, fmt.Errorf("%w: %q is not a valid account name", ErrInvalidRequest, raw)
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) > MaxUsernames {
		return Request{}, fmt.Errorf("%w: at most %d usernames are allowed", ErrInvalidRequest, MaxUsernames)
	}
	slices.Sort(names)

	return Request{Usernames: names, Days: req.Days, Threshold: req.Threshold}, nil
}
