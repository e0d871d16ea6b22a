package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// The version suffix leaves room for algorithm migration.
const (
	DomainFact    = "nexus/fact/v1"
	DomainClosure = "nexus/closure/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FactDigest computes the content digest of a fact.
// CreatedAt is excluded: it is informational and never affects routing.
func FactDigest(f Fact) (string, error) {
	payload := f.Payload
	if payload == nil {
		payload = Object{}
	}
	obj := Object{
		"name":           String(f.Name),
		"payload":        payload,
		"id":             String(f.ID),
		"correlation_id": String(f.CorrelationID),
		"causation_id":   String(f.CausationID),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FactDigest %s: %w", f.ID, err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// ClosureDigest computes a digest over the ordered fact digests of a closure.
// Two emissions with the same facts in the same order share a digest.
func ClosureDigest(closure []Fact) (string, error) {
	digests := make(Array, len(closure))
	for i, f := range closure {
		d, err := FactDigest(f)
		if err != nil {
			return "", fmt.Errorf("ClosureDigest [%d]: %w", i, err)
		}
		digests[i] = String(d)
	}

	canonical, err := MarshalCanonical(digests)
	if err != nil {
		return "", fmt.Errorf("ClosureDigest: %w", err)
	}
	return hashWithDomain(DomainClosure, canonical), nil
}

// MustClosureDigest is like ClosureDigest but panics on error.
// Use only in tests.
func MustClosureDigest(closure []Fact) string {
	d, err := ClosureDigest(closure)
	if err != nil {
		panic(err)
	}
	return d
}
