package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Short is the abbreviated form used in log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

type FingerprintStrategy string

const (
	FingerprintPayload  FingerprintStrategy = "payload"
	FingerprintIdentity FingerprintStrategy = "identity"
)

func (s FingerprintStrategy) Valid() bool {
	return s == FingerprintPayload || s == FingerprintIdentity
}

// Fingerprinter derives the dedup key for an accepted payload.
type Fingerprinter interface {
	Fingerprint(payload Payload, kind EventKind) (Fingerprint, error)
}

type FingerprinterFunc func(payload Payload, kind EventKind) (Fingerprint, error)

func (f FingerprinterFunc) Fingerprint(payload Payload, kind EventKind) (Fingerprint, error) {
	return f(payload, kind)
}

// PayloadFingerprinter hashes the canonical JSON form of the whole payload.
// encoding/json sorts map keys, so structurally equal payloads collide.
type PayloadFingerprinter struct{}

func (PayloadFingerprinter) Fingerprint(payload Payload, _ EventKind) (Fingerprint, error) {
	encoded, err := json.Marshal(map[string]any(payload))
	if err != nil {
		return "", fmt.Errorf("core: fingerprint encode failed: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

// IdentityFingerprinter hashes actor, repository, kind and ref only, so
// retransmissions with differing delivery metadata still collide.
type IdentityFingerprinter struct{}

func (IdentityFingerprinter) Fingerprint(payload Payload, kind EventKind) (Fingerprint, error) {
	parts := []string{payload.Actor(), payload.RepositoryName(), string(kind), payload.Ref()}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

func NewFingerprinter(strategy FingerprintStrategy) (Fingerprinter, error) {
	switch FingerprintStrategy(strings.TrimSpace(strings.ToLower(string(strategy)))) {
	case "", FingerprintPayload:
		return PayloadFingerprinter{}, nil
	case FingerprintIdentity:
		return IdentityFingerprinter{}, nil
	default:
		return nil, fmt.Errorf("core: unsupported fingerprint strategy %q", strategy)
	}
}

var (
	_ Fingerprinter = PayloadFingerprinter{}
	_ Fingerprinter = IdentityFingerprinter{}
)
