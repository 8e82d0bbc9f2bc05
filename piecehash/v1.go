package piecehash

import (
	"fmt"
	"slices"
)

// Piece hashes from a v1 info's flat list of SHA1 hashes.
type V1 struct {
	pieces []byte
}

var _ PieceHashes = (*V1)(nil)

func NewV1(pieces []byte) (*V1, error) {
	if len(pieces)%V1Size != 0 {
		return nil, fmt.Errorf("pieces length %d is not a multiple of %d", len(pieces), V1Size)
	}
	return &V1{slices.Clone(pieces)}, nil
}

func (me *V1) Count() int {
	return len(me.pieces) / V1Size
}

func (me *V1) v1Hash(index int) [V1Size]byte {
	return [V1Size]byte(me.pieces[index*V1Size:])
}

func (me *V1) GetHash(index int) Hash {
	return V1Hash(me.v1Hash(index))
}

func (me *V1) IsValid(candidate Hash, index int) bool {
	if index < 0 || index >= me.Count() {
		return false
	}
	return candidate.V1.Ok && candidate.V1.Value == me.v1Hash(index)
}
