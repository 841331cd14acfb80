package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildTime = "1.2.0", "abc1234", "2024-01-15T12:00:00Z"
	defer func() { Version, Commit, BuildTime = "dev", "unknown", "unknown" }()

	if got, want := String(), "1.2.0 (abc1234) built 2024-01-15T12:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
