// Package hash provides the content hashing used for endpoint change
// detection in drift snapshots.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// String computes the hex SHA-256 of a string.
func String(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// JSON serializes v and hashes the result. Go's json package emits map
// keys in sorted order, which keeps the hash stable across runs.
func JSON(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value for hashing: %w", err)
	}
	return String(string(raw)), nil
}

// Definition hashes an endpoint definition, falling back to a hash of
// the id alone if the definition does not serialize.
func Definition(id string, definition interface{}) string {
	h, err := JSON(definition)
	if err != nil {
		return String(id)
	}
	return h
}
