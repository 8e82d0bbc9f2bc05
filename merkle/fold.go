package merkle

import (
	"crypto/sha256"
	"hash"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// Writes the parents of the hashes in src on the given layer into dst. A trailing unpaired hash is
// combined with the pad hash for the layer. dst may alias the front of src. Returns the filled
// portion of dst.
func hashPairs(h hash.Hash, dst, src []byte, layer int) []byte {
	n := (len(src)/HashSize + 1) / 2 * HashSize
	panicif.LessThan(len(dst), n)
	var pad [HashSize]byte
	for i := 0; i < len(src); i += 2 * HashSize {
		h.Reset()
		h.Write(src[i : i+HashSize])
		if i+HashSize < len(src) {
			h.Write(src[i+HashSize : i+2*HashSize])
		} else {
			pad = PadHash(layer)
			h.Write(pad[:])
		}
		// Sum appends, so this writes the parent in place.
		h.Sum(dst[i/2 : i/2])
	}
	return dst[:n]
}

// Folds buf, hashes on layer, until a subtree of at least minCount nodes on layer is reduced to
// its root. Does not modify buf.
func fold(buf []byte, layer int, minCount int) (node [HashSize]byte, nodeLayer int, ok bool) {
	count := len(buf) / HashSize
	if count == 0 || len(buf)%HashSize != 0 || layer < 0 {
		return
	}
	passes := int(Log2RoundingUp(uint(max(count, minCount))))
	if layer+passes >= NumPadLayers {
		return
	}
	cur := buf
	if passes != 0 {
		h := sha256.New()
		scratch := make([]byte, (count+1)/2*HashSize)
		for range passes {
			cur = hashPairs(h, scratch, cur, layer)
			layer++
		}
	}
	panicif.NotEq(len(cur), HashSize)
	copy(node[:], cur)
	return node, layer, true
}

// Folds buf, a concatenation of hashes on layer, up to a single hash. Odd hashes on any layer are
// paired with that layer's pad hash. Panics if buf isn't a non-empty sequence of whole hashes.
func HashLayer(buf []byte, layer int) [HashSize]byte {
	node, _, ok := fold(buf, layer, 1)
	if !ok {
		panic("malformed hash layer")
	}
	return node
}

// Like HashLayer, but treats buf as the first hashes of a subtree of at least minCount nodes, the
// remainder being padding.
func HashLayerMinCount(buf []byte, layer int, minCount int) [HashSize]byte {
	node, _, ok := fold(buf, layer, minCount)
	if !ok {
		panic("malformed hash layer")
	}
	return node
}

// The number of hashes a request of length hashes covers on its base layer. A single hash still
// has a sibling, so it covers two.
func effectiveLength(length int) int {
	return int(RoundUpToPowerOfTwo(uint(max(2, length))))
}

// Computes the node implied by length hashes on layer starting at index, and the uncle hashes in
// proofs, which ascend from the layer above the subtree covering the hashes. Returns the node and
// the layer it sits on. index must be aligned to the subtree size. Returns false for any malformed
// input, and never panics on untrusted data.
func TryHash(hashes []byte, layer int, proofs []byte, index, length int) (node [HashSize]byte, nodeLayer int, ok bool) {
	if length < 1 || index < 0 || len(hashes) != length*HashSize || len(proofs)%HashSize != 0 {
		return
	}
	effLen := effectiveLength(length)
	if index%effLen != 0 {
		return
	}
	node, nodeLayer, ok = fold(hashes, layer, effLen)
	if !ok {
		return
	}
	h := sha256.New()
	pos := index / effLen
	for i := 0; i < len(proofs); i += HashSize {
		proof := proofs[i : i+HashSize]
		h.Reset()
		if pos%2 == 0 {
			h.Write(node[:])
			h.Write(proof)
		} else {
			h.Write(proof)
			h.Write(node[:])
		}
		h.Sum(node[:0])
		pos /= 2
		nodeLayer++
	}
	return node, nodeLayer, true
}
