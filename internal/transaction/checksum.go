package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Checksum derives the idempotency token for an initiation request. The
// payload is serialized to canonical JSON (object keys sorted, no
// insignificant whitespace) and hashed with SHA-256; the digest is rendered
// as uppercase hex. Two requests with identical business content always
// produce the same token regardless of field order.
func Checksum(payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(canonical)

	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// canonicalJSON marshals v, round-trips it through untyped maps so that
// struct field order is discarded, and re-marshals. encoding/json emits map
// keys in sorted order, which gives the canonical form.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(generic)
}
