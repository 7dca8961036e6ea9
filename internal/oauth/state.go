package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateState creates an unguessable value for the OAuth state parameter.
// Format: state-<timestamp>-<random>
// Example: state-1701432000-a1b2c3d4e5f60718
func GenerateState() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("state-%d", timestamp)
	}
	return fmt.Sprintf("state-%d-%s", timestamp, hex.EncodeToString(random))
}
