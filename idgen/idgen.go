// Package idgen provides pluggable ID generation. Constructors that need
// identifiers accept a Generator so tests can inject deterministic ones.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs. They sort by
// creation time, so the Runs tab reads chronologically.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}
