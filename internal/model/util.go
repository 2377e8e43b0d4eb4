package model

import (
	"crypto/rand"
	"encoding/hex"
)

// ID prefixes for the opaque, globally unique identifiers
const (
	ProjectIDPrefix = "proj_"
	UserIDPrefix    = "usr_"
)

// NewID creates a random hex ID with a prefix
func NewID(prefix string) string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is gone
		panic(err)
	}
	return prefix + hex.EncodeToString(b)
}
