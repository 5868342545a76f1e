package chat

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

const maxNameLength = 16

// ValidateName trims whitespace from rawName and checks it against the
// room's naming rules: 1-16 ASCII alphanumeric characters.
func ValidateName(rawName []byte) (string, error) {
	name := strings.TrimSpace(string(rawName))
	if len(name) == 0 {
		return "", fmt.Errorf("name must not be empty")
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name must be at most %d characters, got %d", maxNameLength, len(name))
	}
	if !nameRegexp.MatchString(name) {
		return "", fmt.Errorf("name must be 1-%d alphanumeric characters, got %q", maxNameLength, name)
	}
	return name, nil
}
