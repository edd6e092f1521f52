package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change without collisions.
const (
	DomainPlan    = "streamplan/plan/v1"
	DomainCatalog = "streamplan/catalog/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The zero byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashJSON canonicalizes a JSON document and hashes it under domain.
// Two documents that differ only in key order or whitespace hash equally.
func HashJSON(domain string, doc []byte) (string, error) {
	canonical, err := CanonicalizeJSON(doc)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// HashValue canonically marshals v and hashes it under domain.
func HashValue(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}
