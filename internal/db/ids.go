package db

import (
	"crypto/rand"
	"encoding/hex"

	"streamhub/internal/constants"
)

// GenerateID returns prefix_<hex> with constants.IDRandomBytes of entropy.
func GenerateID(prefix string) (string, error) {
	b := make([]byte, constants.IDRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
