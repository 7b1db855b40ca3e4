package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows a future
// algorithm change without colliding with old fingerprints.
const (
	DomainState = "recall/state/v1"
	DomainBatch = "recall/batch/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical encoding of v under domain.
// Two replicas holding equal derived state produce equal fingerprints.
func Fingerprint(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// FingerprintOf encodes a typed value and fingerprints it.
func FingerprintOf(domain string, v any) (string, error) {
	pv, err := Encode(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Fingerprint(domain, pv)
}

// MustFingerprintOf is like FingerprintOf but panics on error.
// Use only in tests or when the value is known to encode.
func MustFingerprintOf(domain string, v any) string {
	fp, err := FingerprintOf(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
