package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainPlan    = "ormsql/plan/v1"
	DomainBinding = "ormsql/binding/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanFingerprint computes a stable identity for a translated plan from its
// canonical description. Two translations with the same fingerprint render
// the same SQL shape.
func PlanFingerprint(shape IRObject) (string, error) {
	canonical, err := MarshalCanonical(shape)
	if err != nil {
		return "", fmt.Errorf("PlanFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// BindingHash computes a stable identity for a set of parameter values.
func BindingHash(bindings IRObject) (string, error) {
	canonical, err := MarshalCanonical(bindings)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}
