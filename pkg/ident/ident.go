// Package ident derives ledger lookup keys from human-readable element ids.
//
// Every component (bridge, watcher, CLI, contract tooling) must agree on this
// mapping: a differently normalized id hashes to an unrelated key and silently
// fragments the id space.
package ident

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Key is the fixed-size contract lookup key (keccak256 of the normalized id).
type Key [32]byte

var ErrBadKeyHex = errors.New("ident: malformed key hex")

// Normalize trims surrounding whitespace and lower-cases the raw id.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// HashID maps a raw element id to its ledger key. Deterministic; the empty
// string hashes like any other input, so callers reject blank ids before
// calling this.
func HashID(raw string) Key {
	var k Key
	copy(k[:], crypto.Keccak256([]byte(Normalize(raw))))
	return k
}

func (k Key) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

func ParseKeyHex(s string) (Key, error) {
	var k Key
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, ErrBadKeyHex
	}
	copy(k[:], b)
	return k, nil
}
