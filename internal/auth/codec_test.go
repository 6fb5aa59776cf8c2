package auth

import (
	"strings"
	"testing"
)

func TestDetectScheme(t *testing.T) {
	cases := []struct {
		raw  string
		want Scheme
	}{
		{"srv_abc123", SchemeService},
		{"pat_abc123", SchemePersonal},
		{"eyJhbGciOi.eyJzdWIiOi.sig", SchemeSession},
		{"  srv_abc123  ", SchemeService},
		{"", SchemeUnknown},
		{"abc123", SchemeUnknown},
		{"a.b", SchemeUnknown},
		{"a..c", SchemeUnknown},
		{"a.b.c.d", SchemeUnknown},
		{"srvabc", SchemeUnknown},
	}
	for _, tc := range cases {
		if got := DetectScheme(tc.raw); got != tc.want {
			t.Errorf("DetectScheme(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestGenerateSecret(t *testing.T) {
	raw, digest, err := GenerateSecret(PrefixServiceKey)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if !strings.HasPrefix(raw, "srv_") {
		t.Fatalf("raw %q missing prefix", raw)
	}
	if digest != Digest(raw) {
		t.Fatalf("digest mismatch")
	}
	if len(digest) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(digest))
	}

	raw2, _, err := GenerateSecret(PrefixServiceKey)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if raw == raw2 {
		t.Fatal("two secrets are identical")
	}
}

func TestDigestDeterministic(t *testing.T) {
	if Digest("srv_fixed") != Digest("srv_fixed") {
		t.Fatal("digest is not deterministic")
	}
	if Digest("srv_a") == Digest("srv_b") {
		t.Fatal("distinct inputs share a digest")
	}
}

func TestSuffix(t *testing.T) {
	if got := Suffix("srv_abcdwxyz"); got != "wxyz" {
		t.Fatalf("Suffix = %q, want wxyz", got)
	}
	if got := Suffix("ab"); got != "ab" {
		t.Fatalf("Suffix of short input = %q, want ab", got)
	}
}
