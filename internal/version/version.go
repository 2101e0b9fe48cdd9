package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Build information, set through -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// EnsureVPrefix adds a "v" prefix if missing; golang.org/x/mod/semver requires it.
func EnsureVPrefix(s string) string {
	if strings.HasPrefix(s, "v") {
		return s
	}
	return "v" + s
}

// IsSemver reports whether s is a full major.minor.patch semantic version,
// with or without a leading "v".
func IsSemver(s string) bool {
	v := EnsureVPrefix(s)
	if !semver.IsValid(v) {
		return false
	}
	// semver.IsValid accepts shorthands like v1 and v1.2
	base, _, _ := strings.Cut(v, "+")
	base, _, _ = strings.Cut(base, "-")
	return strings.Count(base, ".") == 2
}

// Compare returns -1, 0 or +1 comparing a and b as semantic versions.
func Compare(a, b string) int {
	return semver.Compare(EnsureVPrefix(a), EnsureVPrefix(b))
}
