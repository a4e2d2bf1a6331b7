package store

import (
	"crypto/sha256"
	"fmt"
)

// HashAudio computes the SHA-256 of an uploaded recording. It identifies
// repeated uploads of the same clip by one user.
func HashAudio(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
