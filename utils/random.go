package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateToken returns 2n random lower-case hex characters. It backs the
// development fallback for JWT_SECRET.
func GenerateToken(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return hex.EncodeToString(byt), nil
}
