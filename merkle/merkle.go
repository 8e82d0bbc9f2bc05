package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"
	"slices"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
)

// The leaf block size for BitTorrent v2 Merkle trees.
const BlockSize = 1 << 14 // 16KiB

const HashSize = sha256.Size

var ErrBadPieceLength = errors.New("piece length must be a power of two and at least the block size")

// Returns the root of a power of two number of hashes. No hashes gives the SHA-256 of empty input.
func Root(hashes [][HashSize]byte) [HashSize]byte {
	if len(hashes) == 0 {
		return sha256.Sum256(nil)
	}
	panicif.False(IsPowerOfTwo(uint(len(hashes))))
	layer := slices.Clone(hashes)
	h := sha256.New()
	for len(layer) > 1 {
		for i := range len(layer) / 2 {
			h.Reset()
			h.Write(layer[2*i][:])
			h.Write(layer[2*i+1][:])
			// Parents overwrite only nodes that have already been read.
			h.Sum(layer[i][:0])
		}
		layer = layer[:len(layer)/2]
	}
	return layer[0]
}

// Pads hashes out to a power of two with padHash and returns their root.
func RootWithPadHash(hashes [][HashSize]byte, padHash [HashSize]byte) [HashSize]byte {
	padded := make([][HashSize]byte, RoundUpToPowerOfTwo(uint(len(hashes))))
	n := copy(padded, hashes)
	for i := n; i < len(padded); i++ {
		padded[i] = padHash
	}
	return Root(padded)
}

// Splits a piece layers value into its hashes.
func CompactLayerToSliceHashes(compactLayer string) (hashes [][HashSize]byte, err error) {
	if len(compactLayer)%HashSize != 0 {
		err = fmt.Errorf("compact layer length %d is not a multiple of %d", len(compactLayer), HashSize)
		return
	}
	g.MakeSliceWithLength(&hashes, len(compactLayer)/HashSize)
	for i := range hashes {
		copy(hashes[i][:], compactLayer[i*HashSize:])
	}
	return
}

// Returns the layer at which one hash covers exactly one piece of the given length. Layer 0 is the
// 16KiB block layer.
func PieceLayerIndex(pieceLength int64) (int, error) {
	if pieceLength < BlockSize || !IsPowerOfTwo(uint(pieceLength)) {
		return 0, fmt.Errorf("%w: %d", ErrBadPieceLength, pieceLength)
	}
	return int(Log2RoundingUp(uint(pieceLength / BlockSize))), nil
}

// Rounds n up to a power of two. 0 and 1 both return 1.
func RoundUpToPowerOfTwo(n uint) (ret uint) {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(n-1)
}

func Log2RoundingUp(n uint) (ret uint) {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(n - 1))
}

func IsPowerOfTwo(n uint) bool {
	return n != 0 && n&(n-1) == 0
}
