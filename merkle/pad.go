package merkle

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// Covers trees of up to 2^48 blocks, far past any real file.
const NumPadLayers = 49

var padHashes = sync.OnceValue(func() *[NumPadLayers][HashSize]byte {
	var ret [NumPadLayers][HashSize]byte
	// Layer 0 is the zero hash, not the hash of a zeroed block. See BEP 52.
	for i := 1; i < NumPadLayers; i++ {
		ret[i] = sha256.Sum256(append(ret[i-1][:], ret[i-1][:]...))
	}
	return &ret
})

// The hash of a subtree rooted at the given layer that contains only padding.
func PadHash(layer int) [HashSize]byte {
	if layer < 0 || layer >= NumPadLayers {
		panic(fmt.Sprintf("pad hash layer %d out of range [0, %d)", layer, NumPadLayers))
	}
	return padHashes()[layer]
}

// The pad hash for a subtree covering length bytes of block data.
func PadHashForLength(length int64) [HashSize]byte {
	return PadHash(padLayerForLength(length))
}

func padLayerForLength(length int64) int {
	return int(Log2RoundingUp(uint((length + BlockSize - 1) / BlockSize)))
}
