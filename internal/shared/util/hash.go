package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// OwnerKey returns the object-store namespace for an owner id: 32 hex chars
// of its SHA-256. Surrounding whitespace is ignored.
func OwnerKey(ownerID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ownerID)))
	return hex.EncodeToString(sum[:16])
}
