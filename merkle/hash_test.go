package merkle

import (
	"bytes"
	"crypto/sha256"
	"io"
	"testing"

	qt "github.com/go-quicktest/qt"
	"lukechampine.com/frand"
)

func refBlockHashes(data []byte) (ret []byte) {
	for off := 0; off < len(data); off += BlockSize {
		sum := sha256.Sum256(data[off:min(off+BlockSize, len(data))])
		ret = append(ret, sum[:]...)
	}
	return
}

func TestHashEmpty(t *testing.T) {
	h := NewHash()
	qt.Check(t, qt.DeepEquals(h.Sum(nil), make([]byte, HashSize)))
	qt.Check(t, qt.HasLen(h.PieceLayer(BlockSize), 0))
	qt.Check(t, qt.Equals(h.Len(), int64(0)))
}

func TestHashSum(t *testing.T) {
	for _, length := range []int{1, BlockSize - 1, BlockSize, BlockSize + 1, 5*BlockSize + 100} {
		data := frand.Bytes(length)
		h := NewHash()
		n, err := h.Write(data)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(n, length))
		qt.Check(t, qt.Equals(h.Len(), int64(length)))
		want := refRoot(refBlockHashes(data), 0)
		qt.Check(t, qt.DeepEquals(h.Sum(nil), want[:]), qt.Commentf("length %v", length))
	}
}

func TestHashChunkedWrites(t *testing.T) {
	data := frand.Bytes(3*BlockSize + 12345)
	whole := NewHash()
	whole.Write(data)
	chunked := NewHash()
	_, err := io.CopyBuffer(chunked, bytes.NewReader(data), make([]byte, 1000))
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(chunked.Sum(nil), whole.Sum(nil)))
	// Summing doesn't consume the partial block.
	qt.Check(t, qt.DeepEquals(chunked.Sum(nil), whole.Sum(nil)))
	chunked.Reset()
	qt.Check(t, qt.DeepEquals(chunked.Sum(nil), NewHash().Sum(nil)))
}

// The root over a file's piece layer, padded with the piece layer pad hash, is the file's root.
func TestHashPieceLayerMatchesRoot(t *testing.T) {
	const pieceLength = 4 * BlockSize
	data := frand.Bytes(10*BlockSize + BlockSize/2)
	h := NewHash()
	h.Write(data)
	pieceLayer := h.PieceLayer(pieceLength)
	qt.Assert(t, qt.HasLen(pieceLayer, 3*HashSize))
	qt.Check(t, qt.DeepEquals(HashLayer(pieceLayer, 2), [HashSize]byte(h.Sum(nil))))

	blocks := refBlockHashes(data)
	for i := range 3 {
		pieceBlocks := blocks[i*4*HashSize : min((i+1)*4*HashSize, len(blocks))]
		qt.Check(t, qt.Equals(hashAt(pieceLayer, i), HashLayerMinCount(pieceBlocks, 0, 4)))
	}

	tail := NewHash()
	tail.Write(data[8*BlockSize:])
	qt.Check(t, qt.DeepEquals(tail.PieceLayer(pieceLength), pieceLayer[2*HashSize:]))
	// A final piece of one block still pads out to the piece length, unlike a file root.
	one := NewHash()
	one.Write(data[:BlockSize])
	qt.Check(t, qt.DeepEquals(one.PieceLayer(pieceLength), hashSlice(HashLayerMinCount(one.Sum(nil), 0, 4))))
}

func hashSlice(h [HashSize]byte) []byte {
	return h[:]
}
