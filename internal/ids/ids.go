// Package ids mints short, prefixed opaque identifiers for VibeCheck
// entities: assessments, findings, agent logs, tunnel sessions, and
// proxied tunnel requests.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix identifies the entity kind encoded in a minted id.
type Prefix string

const (
	PrefixAssessment Prefix = "asm"
	PrefixFinding    Prefix = "fnd"
	PrefixAgentLog   Prefix = "log"
	PrefixTunnel     Prefix = "tun"
	PrefixRequest    Prefix = "req"
)

// randomHexLen is the number of hex characters appended after the prefix.
const randomHexLen = 12

// New mints a new identifier of the form "{prefix}_{12 hex chars}".
func New(p Prefix) string {
	buf := make([]byte, randomHexLen/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader only fails if the OS
		// entropy source is broken; there is no sane recovery path.
		panic(fmt.Sprintf("ids: failed to read random bytes: %v", err))
	}
	return fmt.Sprintf("%s_%s", p, hex.EncodeToString(buf))
}

// Valid reports whether id has the shape "{prefix}_{12 hex chars}" for
// one of the known prefixes.
func Valid(id string) bool {
	parts := strings.SplitN(id, "_", 2)
	if len(parts) != 2 {
		return false
	}
	switch Prefix(parts[0]) {
	case PrefixAssessment, PrefixFinding, PrefixAgentLog, PrefixTunnel, PrefixRequest:
	default:
		return false
	}
	if len(parts[1]) != randomHexLen {
		return false
	}
	_, err := hex.DecodeString(parts[1])
	return err == nil
}
