// Package piecehash answers "what is the expected hash of piece N" for v1, v2 and hybrid torrents.
package piecehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"strings"

	g "github.com/anacrolix/generics"
)

const (
	V1Size = sha1.Size
	V2Size = sha256.Size
)

// The hash of a piece. A torrent's piece hashes are SHA1 only (v1), SHA256 piece layer hashes only
// (v2), or both (hybrid). A valid Hash has at least one.
type Hash struct {
	V1 g.Option[[V1Size]byte]
	V2 g.Option[[V2Size]byte]
}

func V1Hash(h [V1Size]byte) Hash {
	return Hash{V1: g.Some(h)}
}

func V2Hash(h [V2Size]byte) Hash {
	return Hash{V2: g.Some(h)}
}

func HybridHash(v1 [V1Size]byte, v2 [V2Size]byte) Hash {
	return Hash{V1: g.Some(v1), V2: g.Some(v2)}
}

func (h Hash) Ok() bool {
	return h.V1.Ok || h.V2.Ok
}

// Whether h has every hash that want has, and they're equal.
func (h Hash) Satisfies(want Hash) bool {
	if !want.Ok() {
		return false
	}
	if want.V1.Ok && (!h.V1.Ok || h.V1.Value != want.V1.Value) {
		return false
	}
	if want.V2.Ok && (!h.V2.Ok || h.V2.Value != want.V2.Value) {
		return false
	}
	return true
}

func (h Hash) String() string {
	var parts []string
	if h.V1.Ok {
		parts = append(parts, fmt.Sprintf("v1:%x", h.V1.Value))
	}
	if h.V2.Ok {
		parts = append(parts, fmt.Sprintf("v2:%x", h.V2.Value))
	}
	if len(parts) == 0 {
		return "<no hash>"
	}
	return strings.Join(parts, " ")
}

// The piece hash lookups the rest of a client needs: the expected hash of a piece, and whether a
// computed hash matches it. Implementations are immutable and safe for concurrent use.
type PieceHashes interface {
	Count() int
	// Panics if index is out of range.
	GetHash(index int) Hash
	// Returns false for an out of range index.
	IsValid(candidate Hash, index int) bool
}
