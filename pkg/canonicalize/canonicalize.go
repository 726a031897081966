// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization for deterministic content-addressing of evidence
// atoms.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Object keys are sorted lexicographically by UTF-16 code units; array
// element order is preserved, since sequence order is semantically
// meaningful where key order is not. HTML escaping is disabled.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a hex string.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// AtomID derives the deterministic atom identifier for a payload:
// atomType + ":" + SHA-256(canonical payload). Identical logical payloads
// always produce the same ID regardless of key order or source file.
func AtomID(atomType string, payload any) (string, error) {
	h, err := CanonicalHash(payload)
	if err != nil {
		return "", err
	}
	return atomType + ":" + h, nil
}
