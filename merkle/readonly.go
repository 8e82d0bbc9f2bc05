package merkle

import (
	"fmt"
	"slices"
)

// A verified hash tree. It is never modified after construction, so it's safe for concurrent use.
type ReadOnlyLayers struct {
	layers     [][]byte
	pieceLayer int
}

func (me *ReadOnlyLayers) PieceLayer() int {
	return me.pieceLayer
}

func (me *ReadOnlyLayers) FinalLayer() int {
	return len(me.layers) - 1
}

func (me *ReadOnlyLayers) Root() [HashSize]byte {
	return [HashSize]byte(me.layers[me.FinalLayer()])
}

// The number of real hashes stored for a layer.
func (me *ReadOnlyLayers) HashCount(layer int) int {
	me.checkLayer(layer)
	return len(me.layers[layer]) / HashSize
}

// The number of hashes on a layer including padding. This is always a power of two.
func (me *ReadOnlyLayers) PaddedHashCount(layer int) int {
	me.checkLayer(layer)
	return 1 << (me.FinalLayer() - layer)
}

func (me *ReadOnlyLayers) checkLayer(layer int) {
	if layer < me.pieceLayer || layer > me.FinalLayer() {
		panic(fmt.Sprintf("layer %d not in [%d, %d]", layer, me.pieceLayer, me.FinalLayer()))
	}
}

// Returns the hash at index on layer, or the layer's pad hash if index is past the stored hashes.
func (me *ReadOnlyLayers) GetHash(layer, index int) (ret [HashSize]byte) {
	me.checkLayer(layer)
	if index < 0 {
		panic(index)
	}
	buf := me.layers[layer]
	if index < len(buf)/HashSize {
		return [HashSize]byte(buf[index*HashSize:])
	}
	return PadHash(layer)
}

// Fills dst with consecutive hashes from layer starting at index, using pad hashes past the stored
// hashes. Returns the number of hashes copied.
func (me *ReadOnlyLayers) CopyHashes(layer, index int, dst []byte) int {
	me.checkLayer(layer)
	if index < 0 || len(dst)%HashSize != 0 {
		panic(fmt.Sprintf("bad copy of %d bytes from index %d", len(dst), index))
	}
	buf := me.layers[layer]
	n := 0
	if index < len(buf)/HashSize {
		n = copy(dst, buf[index*HashSize:])
	}
	if n < len(dst) {
		pad := PadHash(layer)
		for i := n; i < len(dst); i += HashSize {
			copy(dst[i:], pad[:])
		}
	}
	return len(dst) / HashSize
}

// A copy of the real hashes on the piece layer, as stored in a torrent's piece layers.
func (me *ReadOnlyLayers) PieceLayerBytes() []byte {
	return slices.Clone(me.layers[me.pieceLayer])
}

// Returns length hashes on baseLayer starting at index, and proofCount uncle hashes ascending from
// the subtree containing them, in the order TryHash consumes them. Fails if the request doesn't
// fit in the tree or isn't aligned.
func (me *ReadOnlyLayers) TryGetHashes(baseLayer, index, length, proofCount int) (hashes, proofs []byte, ok bool) {
	if baseLayer < me.pieceLayer || baseLayer > me.FinalLayer() {
		return
	}
	if length < 1 || index < 0 || proofCount < 0 {
		return
	}
	effLen := effectiveLength(length)
	if index%effLen != 0 || index >= me.PaddedHashCount(baseLayer) {
		return
	}
	proofLayer := baseLayer + int(Log2RoundingUp(uint(effLen)))
	if proofLayer+proofCount > me.FinalLayer() {
		return
	}
	hashes = make([]byte, length*HashSize)
	me.CopyHashes(baseLayer, index, hashes)
	proofs = make([]byte, 0, proofCount*HashSize)
	pos := index / effLen
	for range proofCount {
		uncle := me.GetHash(proofLayer, pos^1)
		proofs = append(proofs, uncle[:]...)
		pos /= 2
		proofLayer++
	}
	return hashes, proofs, true
}
