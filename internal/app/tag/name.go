package tag

import (
	"fmt"
	"strings"
)

// ValidateName checks the given short tag name against the git reference name rules.
func ValidateName(name string) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w '%s': %s", ErrInvalidTagName, name, reason)
	}
	if name == "" {
		return invalid("empty name")
	}
	if name == "@" {
		return invalid("'@' is reserved")
	}
	if strings.HasPrefix(name, "-") {
		return invalid("can't start with '-'")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return invalid("can't start or end with '/'")
	}
	if strings.HasSuffix(name, ".") {
		return invalid("can't end with '.'")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return invalid("contains a forbidden sequence")
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f || strings.ContainsRune(" ~^:?*[\\", c) {
			return invalid(fmt.Sprintf("forbidden character %q", c))
		}
	}
	for _, component := range strings.Split(name, "/") {
		if strings.HasPrefix(component, ".") {
			return invalid("a component can't start with '.'")
		}
		if strings.HasSuffix(component, ".lock") {
			return invalid("a component can't end with '.lock'")
		}
	}
	return nil
}
