package piecehash

import (
	"errors"
	"fmt"

	"github.com/piecetree/piecetree/metainfo"
)

// Piece hashes for a torrent with both v1 and v2 metadata. Pieces are checked against both.
type Hybrid struct {
	V1 *V1
	V2 *V2
}

var _ PieceHashes = Hybrid{}

func NewHybrid(v1 *V1, v2 *V2) (Hybrid, error) {
	if v1.Count() != v2.Count() {
		return Hybrid{}, fmt.Errorf("v1 has %d pieces, v2 has %d", v1.Count(), v2.Count())
	}
	return Hybrid{v1, v2}, nil
}

func (me Hybrid) Count() int {
	return me.V1.Count()
}

func (me Hybrid) GetHash(index int) Hash {
	return Hash{
		V1: me.V1.GetHash(index).V1,
		V2: me.V2.GetHash(index).V2,
	}
}

func (me Hybrid) IsValid(candidate Hash, index int) bool {
	return me.V1.IsValid(candidate, index) && me.V2.IsValid(candidate, index)
}

// Returns the piece hashes for whichever versions info carries. For v2 infos, every piece layer is
// verified against its file's pieces root.
func FromInfo(info *metainfo.Info, pieceLayers map[string]string) (PieceHashes, error) {
	err := info.Validate()
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsHybrid():
		v1, err := NewV1(info.Pieces)
		if err != nil {
			return nil, err
		}
		v2, err := LoadV2(info, pieceLayers)
		if err != nil {
			return nil, err
		}
		return NewHybrid(v1, v2)
	case info.HasV2():
		return LoadV2(info, pieceLayers)
	case info.HasV1():
		return NewV1(info.Pieces)
	default:
		return nil, errors.New("info has neither v1 nor v2 fields")
	}
}
