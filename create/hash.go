package create

import (
	"context"
	"crypto/sha1"
	"fmt"
	"hash"
	"os"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/piecetree/piecetree/merkle"
)

// Maps the file and passes it to f one piece at a time, checking ctx between pieces.
func readFile(ctx context.Context, file File, pieceLength int64, f func(chunk []byte)) (err error) {
	if file.Length == 0 {
		return nil
	}
	osFile, err := os.Open(file.OsPath)
	if err != nil {
		return
	}
	defer osFile.Close()
	fi, err := osFile.Stat()
	if err != nil {
		return
	}
	if fi.Size() != file.Length {
		return fmt.Errorf("file %q has length %v, expected %v", file.OsPath, fi.Size(), file.Length)
	}
	m, err := mmap.Map(osFile, mmap.RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "mapping %q", file.OsPath)
	}
	defer m.Unmap()
	for off := int64(0); off < file.Length; off += pieceLength {
		err = ctx.Err()
		if err != nil {
			return
		}
		f(m[off:min(off+pieceLength, file.Length)])
	}
	return
}

// Hashes a single piece aligned file. If padTail, the file's last v1 piece is hashed as though
// padded with zeroes to the piece length.
func hashFile(ctx context.Context, file File, pieceLength int64, v1, padTail bool) (ret fileHashes, err error) {
	h := merkle.NewHash()
	var v1Hash hash.Hash
	if v1 {
		v1Hash = sha1.New()
	}
	err = readFile(ctx, file, pieceLength, func(chunk []byte) {
		h.Write(chunk)
		if v1Hash == nil {
			return
		}
		v1Hash.Reset()
		v1Hash.Write(chunk)
		if padTail && int64(len(chunk)) < pieceLength {
			v1Hash.Write(make([]byte, pieceLength-int64(len(chunk))))
		}
		ret.v1Pieces = v1Hash.Sum(ret.v1Pieces)
	})
	if err != nil {
		return
	}
	if file.Length == 0 {
		return
	}
	if file.Length <= pieceLength {
		ret.root = g.Some([32]byte(h.Sum(nil)))
		return
	}
	pieceLayer := h.PieceLayer(pieceLength)
	count := len(pieceLayer) / merkle.HashSize
	layers, err := merkle.NewLayers(g.None[[32]byte](), pieceLength, count)
	if err != nil {
		return
	}
	panicif.False(layers.TryAppend(layers.PieceLayer(), 0, count, pieceLayer, nil))
	tree, ok := layers.TryVerify()
	panicif.False(ok)
	panicif.NotEq(tree.Root(), [32]byte(h.Sum(nil)))
	ret.tree = tree
	ret.root = g.Some(tree.Root())
	return
}

// Computes v1 piece hashes over a stream that crosses file boundaries.
type v1PieceWriter struct {
	pieceLength int64
	h           hash.Hash
	written     int64
	pieces      []byte
}

func newV1PieceWriter(pieceLength int64) *v1PieceWriter {
	return &v1PieceWriter{
		pieceLength: pieceLength,
		h:           sha1.New(),
	}
}

func (me *v1PieceWriter) Write(b []byte) {
	for len(b) > 0 {
		n := min(int64(len(b)), me.pieceLength-me.written)
		me.h.Write(b[:n])
		me.written += n
		b = b[n:]
		if me.written == me.pieceLength {
			me.pieces = me.h.Sum(me.pieces)
			me.h.Reset()
			me.written = 0
		}
	}
}

// Returns the piece hashes, including a trailing short piece.
func (me *v1PieceWriter) Finish() []byte {
	if me.written != 0 {
		me.pieces = me.h.Sum(me.pieces)
		me.h.Reset()
		me.written = 0
	}
	return me.pieces
}
