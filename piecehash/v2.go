package piecehash

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	g "github.com/anacrolix/generics"

	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/metainfo"
)

// The most hashes a peer may request at once. See BEP 52.
const MaxHashesPerRequest = 512

// Piece hashes for a v2 info: each file's pieces root, and for files larger than a piece, a
// verified tree whose piece layer has one hash per piece.
type V2 struct {
	pieceLength int64
	pieceLayer  int
	// Non-empty files, in piece order.
	files     []metainfo.TorrentFile
	trees     map[[V2Size]byte]*merkle.ReadOnlyLayers
	numPieces int
}

var _ PieceHashes = (*V2)(nil)

func displayPath(path []string) string {
	return strings.Join(path, "/")
}

// Checks the piece layer hashes for a file against its root, returning the verified tree.
func VerifyPieceLayer(root [V2Size]byte, pieceLength int64, pieceLayer []byte) (*merkle.ReadOnlyLayers, error) {
	if len(pieceLayer)%merkle.HashSize != 0 {
		return nil, fmt.Errorf("piece layer length %d is not a multiple of %d", len(pieceLayer), merkle.HashSize)
	}
	count := len(pieceLayer) / merkle.HashSize
	layers, err := merkle.NewLayers(g.Some(root), pieceLength, count)
	if err != nil {
		return nil, err
	}
	pieceLayerIndex := layers.PieceLayer()
	if !layers.TryAppend(pieceLayerIndex, 0, count, pieceLayer, nil) {
		return nil, fmt.Errorf("piece layer does not hash to %x", root)
	}
	tree, ok := layers.TryVerify()
	if !ok {
		return nil, fmt.Errorf("piece layer tree does not verify against %x", root)
	}
	return tree, nil
}

// Builds V2 piece hashes from files and verified trees keyed by pieces root. Every file larger than
// a piece must have a tree with one piece layer hash per piece.
func NewV2(
	pieceLength int64,
	files []metainfo.TorrentFile,
	trees map[[V2Size]byte]*merkle.ReadOnlyLayers,
) (*V2, error) {
	pieceLayer, err := merkle.PieceLayerIndex(pieceLength)
	if err != nil {
		return nil, err
	}
	me := &V2{
		pieceLength: pieceLength,
		pieceLayer:  pieceLayer,
		trees:       make(map[[V2Size]byte]*merkle.ReadOnlyLayers),
	}
	for _, tf := range files {
		if tf.Length == 0 {
			continue
		}
		if !tf.PiecesRoot.Ok {
			return nil, fmt.Errorf("file %q has no pieces root", displayPath(tf.Path))
		}
		if tf.StartPieceIndex != me.numPieces {
			return nil, fmt.Errorf(
				"file %q starts at piece %d, expected %d",
				displayPath(tf.Path), tf.StartPieceIndex, me.numPieces)
		}
		me.numPieces += tf.NumPieces()
		me.files = append(me.files, tf)
		if tf.Length <= pieceLength {
			continue
		}
		tree, ok := trees[tf.PiecesRoot.Value]
		if !ok {
			return nil, fmt.Errorf("no piece layers for file %q", displayPath(tf.Path))
		}
		if tree.Root() != tf.PiecesRoot.Value {
			return nil, fmt.Errorf("file %q: tree root %x does not match pieces root %x",
				displayPath(tf.Path), tree.Root(), tf.PiecesRoot.Value)
		}
		if tree.PieceLayer() != pieceLayer {
			return nil, fmt.Errorf("file %q: tree piece layer is %d, expected %d",
				displayPath(tf.Path), tree.PieceLayer(), pieceLayer)
		}
		if tree.HashCount(pieceLayer) != tf.NumPieces() {
			return nil, fmt.Errorf("file %q: piece layer has %d hashes, file has %d pieces",
				displayPath(tf.Path), tree.HashCount(pieceLayer), tf.NumPieces())
		}
		me.trees[tf.PiecesRoot.Value] = tree
	}
	return me, nil
}

// Verifies the piece layers of a v2 info, and returns its piece hashes. A mismatch between the
// piece layers and file tree names the offending file.
func LoadV2(info *metainfo.Info, pieceLayers map[string]string) (*V2, error) {
	if !info.HasV2() {
		return nil, errors.New("info has no v2 fields")
	}
	files := slices.Collect(info.TorrentFiles())
	trees := make(map[[V2Size]byte]*merkle.ReadOnlyLayers)
	for _, tf := range files {
		if tf.Length <= info.PieceLength || !tf.PiecesRoot.Ok {
			continue
		}
		root := tf.PiecesRoot.Value
		if _, ok := trees[root]; ok {
			// Files with identical content share a root.
			continue
		}
		layer, ok := pieceLayers[string(root[:])]
		if !ok {
			return nil, fmt.Errorf("no piece layers for file %q", displayPath(tf.Path))
		}
		if len(layer) != tf.NumPieces()*merkle.HashSize {
			return nil, fmt.Errorf("file %q: piece layers have %d bytes, expected %d hashes",
				displayPath(tf.Path), len(layer), tf.NumPieces())
		}
		tree, err := VerifyPieceLayer(root, info.PieceLength, []byte(layer))
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", displayPath(tf.Path), err)
		}
		trees[root] = tree
	}
	return NewV2(info.PieceLength, files, trees)
}

func (me *V2) Count() int {
	return me.numPieces
}

func (me *V2) PieceLength() int64 {
	return me.pieceLength
}

// The piece layer index shared by every file's tree.
func (me *V2) PieceLayer() int {
	return me.pieceLayer
}

// The non-empty files, in piece order.
func (me *V2) Files() []metainfo.TorrentFile {
	return me.files
}

func (me *V2) fileForPiece(index int) (metainfo.TorrentFile, bool) {
	i := sort.Search(len(me.files), func(i int) bool {
		return me.files[i].EndPieceIndex >= index
	})
	if i == len(me.files) || !me.files[i].ContainsPiece(index) {
		return metainfo.TorrentFile{}, false
	}
	return me.files[i], true
}

func (me *V2) v2Hash(index int) ([V2Size]byte, bool) {
	tf, ok := me.fileForPiece(index)
	if !ok {
		return [V2Size]byte{}, false
	}
	if tf.Length <= me.pieceLength {
		return tf.PiecesRoot.Value, true
	}
	return me.trees[tf.PiecesRoot.Value].GetHash(me.pieceLayer, index-tf.StartPieceIndex), true
}

func (me *V2) GetHash(index int) Hash {
	h, ok := me.v2Hash(index)
	if !ok {
		panic(fmt.Sprintf("piece index %d out of range [0, %d)", index, me.numPieces))
	}
	return V2Hash(h)
}

func (me *V2) IsValid(candidate Hash, index int) bool {
	h, ok := me.v2Hash(index)
	return ok && candidate.V2.Ok && candidate.V2.Value == h
}

// The verified tree for a pieces root. Files no larger than a piece have no tree.
func (me *V2) Tree(piecesRoot [V2Size]byte) (*merkle.ReadOnlyLayers, bool) {
	tree, ok := me.trees[piecesRoot]
	return tree, ok
}

// Returns length hashes from the piece layer of the file with piecesRoot starting at index, and
// proofCount uncle hashes so a peer can check them against the root. See BEP 52 hash requests.
func (me *V2) TryGetV2Hashes(
	piecesRoot [V2Size]byte,
	baseLayer, index, length, proofCount int,
) (hashes, proofs []byte, ok bool) {
	if baseLayer != me.pieceLayer || length < 1 || length > MaxHashesPerRequest {
		return
	}
	tree, ok := me.trees[piecesRoot]
	if !ok {
		return
	}
	return tree.TryGetHashes(baseLayer, index, length, proofCount)
}

// The piece layers dict for a torrent's metainfo.
func (me *V2) PieceLayers() map[string]string {
	ret := make(map[string]string, len(me.trees))
	for root, tree := range me.trees {
		ret[string(root[:])] = string(tree.PieceLayerBytes())
	}
	return ret
}
