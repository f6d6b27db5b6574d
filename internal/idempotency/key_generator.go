package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// InteractionKey identifies a single chat interaction. An empty interaction id yields "".
func InteractionKey(platform, interactionID string) string {
	if interactionID == "" {
		return ""
	}
	return GenerateKey(platform, interactionID)
}
