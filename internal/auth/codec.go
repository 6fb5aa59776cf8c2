package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	// PrefixServiceKey and PrefixPersonalKey are the fixed scheme prefixes
	// of opaque programmatic credentials.
	PrefixServiceKey  = "srv"
	PrefixPersonalKey = "pat"

	// SuffixLen is the number of trailing characters echoed back for
	// display. Never sufficient to authenticate.
	SuffixLen = 4

	secretBytes = 32
)

// GenerateSecret mints an opaque credential of the form
// {prefix}_{high-entropy-suffix} and returns the plaintext together with its
// storage digest. The plaintext must be handed to the caller exactly once and
// never persisted.
func GenerateSecret(prefix string) (raw, digest string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = prefix + "_" + base64.RawURLEncoding.EncodeToString(buf)
	return raw, Digest(raw), nil
}

// Digest computes the one-way storage digest of a raw credential.
// Deterministic for identical input; lookups compare digests only.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Suffix extracts the trailing display characters of a raw credential.
func Suffix(raw string) string {
	if len(raw) <= SuffixLen {
		return raw
	}
	return raw[len(raw)-SuffixLen:]
}

// DetectScheme classifies a raw credential purely by shape. It performs no
// store lookups or cryptographic work and must run before either.
func DetectScheme(raw string) Scheme {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SchemeUnknown
	}
	if strings.HasPrefix(raw, PrefixServiceKey+"_") {
		return SchemeService
	}
	if strings.HasPrefix(raw, PrefixPersonalKey+"_") {
		return SchemePersonal
	}
	// The standard signed-token shape: three dot-delimited segments.
	parts := strings.Split(raw, ".")
	if len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "" {
		return SchemeSession
	}
	return SchemeUnknown
}
