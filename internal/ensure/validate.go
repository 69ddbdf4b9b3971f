package ensure

import (
	"errors"
	"fmt"
	"strings"
)

// MinNameLength is the shortest list name accepted.
const MinNameLength = 3

// forbiddenNameChars cannot appear in a list title.
const forbiddenNameChars = `~"#%&*:<>?/\{|};`

// ErrInvalidName is returned by Ensure when the list name fails validation.
var ErrInvalidName = errors.New("invalid list name")

// NameCheck is the outcome of ValidateName.
type NameCheck struct {
	Valid   bool
	Message string
}

// ValidateName checks a list name. existing holds names that are already
// taken; callers pass it only when the list is about to be created, and the
// comparison ignores case.
func ValidateName(name string, existing []string) NameCheck {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return NameCheck{Message: "List name is required"}
	case len([]rune(trimmed)) < MinNameLength:
		return NameCheck{Message: fmt.Sprintf("List name must be at least %d characters", MinNameLength)}
	case strings.ContainsAny(name, forbiddenNameChars):
		return NameCheck{Message: "List name cannot contain special characters ~ \" # % & * : < > ? / \\ { | } ;"}
	}
	for _, e := range existing {
		if strings.EqualFold(strings.TrimSpace(e), trimmed) {
			return NameCheck{Message: fmt.Sprintf("A list named %q already exists", e)}
		}
	}
	return NameCheck{Valid: true}
}

// Err returns nil for a valid name, or ErrInvalidName carrying the message.
func (c NameCheck) Err() error {
	if c.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidName, c.Message)
}
