package common

import "fmt"

const (
	major = 1
	minor = 0
	patch = 0

	// Version is the current version of the contract code and of the state
	// layout it writes.
	Version = major*1_000_000 + minor*1_000 + patch
)

// ErrVersionMismatch is returned by CheckVersion if stored state can't be
// handled by the current code.
const ErrVersionMismatch = "state version mismatch"

// CheckVersion checks that the state written by version from can be read by
// the current code.
func CheckVersion(from int) error {
	if from > Version {
		return fmt.Errorf("%s: state %s is newer than code %s", ErrVersionMismatch, FormatVersion(from), FormatVersion(Version))
	}
	if from < 1_000_000 {
		return fmt.Errorf("%s: unsupported state %s", ErrVersionMismatch, FormatVersion(from))
	}
	return nil
}

// FormatVersion returns dotted major.minor.patch representation.
func FormatVersion(v int) string {
	return fmt.Sprintf("%d.%d.%d", v/1_000_000, v/1_000%1_000, v%1_000)
}
