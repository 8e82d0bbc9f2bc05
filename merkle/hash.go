package merkle

import (
	"crypto/sha256"
	"hash"
	"unsafe"
)

func NewHash() *Hash {
	h := &Hash{
		nextBlock: sha256.New(),
	}
	return h
}

// Computes BitTorrent v2 block hashes over written data, and the roots and piece layers built
// from them.
type Hash struct {
	// Concatenated layer 0 hashes of complete blocks.
	blocks    []byte
	nextBlock hash.Hash
	// How many bytes have been written to nextBlock so far.
	nextBlockWritten int
}

func (h *Hash) remaining() int {
	return BlockSize - h.nextBlockWritten
}

func (h *Hash) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		var n1 int
		n1, err = h.nextBlock.Write(p[:min(len(p), h.remaining())])
		n += n1
		h.nextBlockWritten += n1
		p = p[n1:]
		if h.remaining() == 0 {
			h.blocks = h.appendNextBlockSum(h.blocks)
			h.nextBlock.Reset()
			h.nextBlockWritten = 0
		}
		if err != nil {
			break
		}
	}
	return
}

func (h *Hash) appendNextBlockSum(b []byte) []byte {
	var sum [HashSize]byte
	if unsafe.SliceData(h.nextBlock.Sum(sum[:0])) != unsafe.SliceData(sum[:]) {
		panic("block sum escaped")
	}
	return append(b, sum[:]...)
}

// The layer 0 hashes for everything written so far, including a trailing partial block.
func (h *Hash) curBlocks() []byte {
	blocks := h.blocks
	if h.nextBlockWritten != 0 {
		blocks = h.appendNextBlockSum(blocks[:len(blocks):len(blocks)])
	}
	return blocks
}

// The number of bytes written so far.
func (h *Hash) Len() int64 {
	return int64(len(h.blocks)/HashSize)*BlockSize + int64(h.nextBlockWritten)
}

// Appends the root of the blocks written so far, padded out to a power of two. Empty input sums to
// the layer 0 pad hash.
func (h *Hash) Sum(b []byte) []byte {
	blocks := h.curBlocks()
	if len(blocks) == 0 {
		sum := PadHash(0)
		return append(b, sum[:]...)
	}
	sum := HashLayer(blocks, 0)
	return append(b, sum[:]...)
}

// Returns the piece layer for everything written so far: one hash per piece, each the root of that
// piece's blocks, with the final piece padded out with zero hashes. pieceLength must be a valid v2
// piece length.
func (h *Hash) PieceLayer(pieceLength int64) []byte {
	blocks := h.curBlocks()
	blocksPerPiece := int(pieceLength / BlockSize)
	pieceBlocksLen := blocksPerPiece * HashSize
	ret := make([]byte, 0, (len(blocks)+pieceBlocksLen-1)/pieceBlocksLen*HashSize)
	for off := 0; off < len(blocks); off += pieceBlocksLen {
		sum := HashLayerMinCount(blocks[off:min(off+pieceBlocksLen, len(blocks))], 0, blocksPerPiece)
		ret = append(ret, sum[:]...)
	}
	return ret
}

func (h *Hash) Reset() {
	h.blocks = h.blocks[:0]
	h.nextBlock.Reset()
	h.nextBlockWritten = 0
}

func (h *Hash) Size() int {
	return HashSize
}

func (h *Hash) BlockSize() int {
	return h.nextBlock.BlockSize()
}

var _ hash.Hash = (*Hash)(nil)
