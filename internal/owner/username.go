package owner

import (
	"fmt"
	"strings"

	"anonuplift/internal/apperr"
)

// UsernameRules holds the configured length bounds.
type UsernameRules struct {
	Min int
	Max int
}

var DefaultUsernameRules = UsernameRules{Min: 3, Max: 20}

// Validate enforces lowercase ASCII letters and digits, with length in
// [Min, Max].
func (r UsernameRules) Validate(username string) error {
	if len(username) < r.Min || len(username) > r.Max {
		return r.invalid()
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return r.invalid()
		}
	}
	return nil
}

func (r UsernameRules) invalid() error {
	return apperr.Validation("invalid_username",
		fmt.Sprintf("Username must be %d-%d characters, lowercase letters and numbers only.", r.Min, r.Max))
}

func looksLikeEmail(v string) bool {
	return strings.Contains(v, "@")
}
