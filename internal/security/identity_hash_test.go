package security

import "testing"

func TestCandidatesWithoutPepper(t *testing.T) {
	h := NewIdentityHasher("")

	got := h.Candidates("203.0.113.7")
	if len(got) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(got))
	}
	if got[0] != legacyDigest("203.0.113.7") {
		t.Fatalf("candidate = %s, want legacy digest", got[0])
	}
	if h.Peppered() {
		t.Fatal("hasher without pepper reported Peppered")
	}
}

func TestCandidatesPepperFirstThenLegacy(t *testing.T) {
	h := NewIdentityHasher("current-pepper")

	got := h.Candidates(" 203.0.113.7 ")
	if len(got) != 2 {
		t.Fatalf("candidate count = %d, want 2", len(got))
	}
	if got[0] != pepperedDigest([]byte("current-pepper"), "203.0.113.7") {
		t.Fatalf("first candidate is not the peppered digest")
	}
	if got[1] != legacyDigest("203.0.113.7") {
		t.Fatalf("last candidate is not the legacy digest")
	}
	if h.Canonical("203.0.113.7") != got[0] {
		t.Fatal("Canonical does not match first candidate")
	}
}

func TestCandidatesIncludePreviousPeppers(t *testing.T) {
	h := NewIdentityHasher("new", "old", "", "new")

	got := h.Candidates("198.51.100.1")
	want := []string{
		pepperedDigest([]byte("new"), "198.51.100.1"),
		pepperedDigest([]byte("old"), "198.51.100.1"),
		legacyDigest("198.51.100.1"),
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBlankIdentityUsesAnonymousSentinel(t *testing.T) {
	h := NewIdentityHasher("")
	if h.Canonical("   ") != legacyDigest(AnonymousIdentity) {
		t.Fatal("blank identity was not hashed as the anonymous sentinel")
	}
}

func TestLoadIdentityHasherFromEnv(t *testing.T) {
	t.Setenv(identityPepperEnv, "env-pepper")
	t.Setenv(identityPreviousPepperEnv, "older-pepper")

	h := LoadIdentityHasher()
	if got := len(h.Candidates("10.0.0.1")); got != 3 {
		t.Fatalf("candidate count = %d, want 3", got)
	}
}
