package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
)

var (
	ErrTooFewHashes  = errors.New("a piece layer tree needs at least two hashes")
	ErrTooManyHashes = errors.New("too many piece layer hashes")
)

// The most hashes a piece layer may have, 512MiB of hashes. Piece lengths are chosen to keep real
// piece layers far smaller.
const MaxPieceLayerHashes = 1 << 24

// The hash tree for a single file from its piece layer up to the root, built from untrusted hashes.
// Layers below the piece layer are never materialized. Storage for each layer covers only the real
// hashes; the padding out to a power of two is implied. Not safe for concurrent use.
type Layers struct {
	// Indexed by layer. Entries below the piece layer are nil.
	layers       [][]byte
	pieceLayer   int
	expectedRoot g.Option[[HashSize]byte]
}

// expectedRoot may be None, in which case the first successful append pins the root.
func NewLayers(
	expectedRoot g.Option[[HashSize]byte],
	pieceLength int64,
	pieceLayerHashCount int,
) (*Layers, error) {
	pieceLayer, err := PieceLayerIndex(pieceLength)
	if err != nil {
		return nil, err
	}
	if pieceLayerHashCount < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewHashes, pieceLayerHashCount)
	}
	if pieceLayerHashCount > MaxPieceLayerHashes {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyHashes, pieceLayerHashCount, MaxPieceLayerHashes)
	}
	finalLayer := pieceLayer + int(Log2RoundingUp(uint(pieceLayerHashCount)))
	if finalLayer >= NumPadLayers {
		return nil, fmt.Errorf("tree with %d hashes on layer %d is too deep", pieceLayerHashCount, pieceLayer)
	}
	layers := make([][]byte, finalLayer+1)
	count := pieceLayerHashCount
	for l := pieceLayer; l <= finalLayer; l++ {
		layers[l] = make([]byte, count*HashSize)
		count = (count + 1) / 2
	}
	panicif.NotEq(len(layers[finalLayer]), HashSize)
	return &Layers{
		layers:       layers,
		pieceLayer:   pieceLayer,
		expectedRoot: expectedRoot,
	}, nil
}

func (me *Layers) PieceLayer() int {
	return me.pieceLayer
}

func (me *Layers) FinalLayer() int {
	return len(me.layers) - 1
}

func (me *Layers) ExpectedRoot() g.Option[[HashSize]byte] {
	return me.expectedRoot
}

// The number of real (non-padding) hashes on a materialized layer.
func (me *Layers) HashCount(layer int) int {
	return len(me.layers[layer]) / HashSize
}

// Stores length hashes on baseLayer starting at index, if they and the proofs reproduce the
// expected root. If no root was expected, the computed root becomes the expected one. Hashes
// beyond the real data on the layer must be padding, and are not stored. Nothing is modified if
// false is returned.
func (me *Layers) TryAppend(baseLayer, index, length int, hashes, proofs []byte) bool {
	if baseLayer < me.pieceLayer || baseLayer > me.FinalLayer() {
		return false
	}
	dest := me.layers[baseLayer]
	if index < 0 || index*HashSize > len(dest) {
		return false
	}
	root, rootLayer, ok := TryHash(hashes, baseLayer, proofs, index, length)
	if !ok || rootLayer != me.FinalLayer() {
		return false
	}
	if me.expectedRoot.Ok && me.expectedRoot.Value != root {
		return false
	}
	me.expectedRoot = g.Some(root)
	copy(dest[index*HashSize:], hashes)
	return true
}

// Computes every layer above the piece layer from the piece layer, and checks the result against
// the expected root. The returned tree is independent of the receiver, which is left unmodified.
func (me *Layers) TryVerify() (*ReadOnlyLayers, bool) {
	if !me.expectedRoot.Ok {
		return nil, false
	}
	finalLayer := me.FinalLayer()
	layers := make([][]byte, len(me.layers))
	layers[me.pieceLayer] = slices.Clone(me.layers[me.pieceLayer])
	h := sha256.New()
	for l := me.pieceLayer; l < finalLayer; l++ {
		next := make([]byte, len(me.layers[l+1]))
		layers[l+1] = hashPairs(h, next, layers[l], l)
		panicif.NotEq(len(layers[l+1]), len(next))
	}
	if [HashSize]byte(layers[finalLayer]) != me.expectedRoot.Value {
		return nil, false
	}
	return &ReadOnlyLayers{
		layers:     layers,
		pieceLayer: me.pieceLayer,
	}, true
}
