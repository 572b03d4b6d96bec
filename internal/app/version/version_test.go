package version

import "testing"

func TestGetPrefersLinkedVersion(t *testing.T) {
	old := buildVersion
	t.Cleanup(func() { buildVersion = old })

	buildVersion = "1.4.0"
	if got := Get().Version; got != "1.4.0" {
		t.Fatalf("Version = %q, want 1.4.0", got)
	}
}
