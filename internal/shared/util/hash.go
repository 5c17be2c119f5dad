package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of data, used to correlate documents in logs
// without logging their content.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
