package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() {
		Version, Commit = origVersion, origCommit
	}()

	Version = "1.2.3"
	Commit = "abc1234"

	if got, want := String(), "1.2.3 (abc1234)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := UserAgent(), "quotedesk/1.2.3"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

func TestDefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
}
