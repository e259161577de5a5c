// Package semver validates version strings and requirement ranges using the
// same grammar cargo clients expect (caret, tilde, wildcard, comparator sets).
package semver

import (
	"fmt"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Parse validates that s is a well-formed semantic version, returning its
// canonical string form.
func Parse(s string) (string, error) {
	v, err := mmsemver.NewVersion(s)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v.String(), nil
}

// ParseRequirement validates a dependency requirement string.
func ParseRequirement(s string) error {
	if s == "" {
		return fmt.Errorf("empty version requirement")
	}
	if _, err := mmsemver.NewConstraint(s); err != nil {
		return fmt.Errorf("invalid version requirement %q: %w", s, err)
	}
	return nil
}

// Less reports whether a sorts strictly before b under semver precedence.
// Malformed inputs sort lexicographically as a fallback so a bad version
// never panics the sparse-index ordering pass.
func Less(a, b string) bool {
	va, erra := mmsemver.NewVersion(a)
	vb, errb := mmsemver.NewVersion(b)
	if erra != nil || errb != nil {
		return a < b
	}
	return va.LessThan(vb)
}
