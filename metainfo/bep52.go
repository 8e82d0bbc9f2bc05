package metainfo

import (
	"fmt"
	"strings"

	"github.com/piecetree/piecetree/merkle"
)

// Checks that every file in the tree larger than a piece has piece layers that hash to its pieces
// root. Errors name the offending file.
func ValidatePieceLayers(
	pieceLayers map[string]string,
	fileTree *FileTree,
	pieceLength int64,
) (err error) {
	_, err = merkle.PieceLayerIndex(pieceLength)
	if err != nil {
		return
	}
	padHash := HashForPiecePad(pieceLength)
	fileTree.Walk(nil, func(path []string, ft *FileTree) {
		if err != nil {
			return
		}
		if ft.IsDir() {
			return
		}
		if ft.File.Length < 0 {
			err = fmt.Errorf("file %q has negative length %d", strings.Join(path, "/"), ft.File.Length)
			return
		}
		piecesRoot := ft.PiecesRootAsByteArray()
		if !piecesRoot.Ok {
			return
		}
		filePieceLayers, ok := pieceLayers[string(piecesRoot.Value[:])]
		if !ok {
			// BEP 52: "For each file in the file tree that is larger than the piece size it
			// contains one string value.". The reference torrent creator in
			// https://blog.libtorrent.org/2020/09/bittorrent-v2/ also has this. If a file is equal
			// to or smaller than the piece length, we can just use the pieces root instead of the
			// piece layer hash.
			if ft.File.Length > pieceLength {
				err = fmt.Errorf("no piece layers for file %q", strings.Join(path, "/"))
			}
			return
		}
		wantHashes := (ft.File.Length + pieceLength - 1) / pieceLength
		if int64(len(filePieceLayers)) != wantHashes*merkle.HashSize {
			err = fmt.Errorf(
				"file %q: piece layers has %d bytes, expected %d hashes",
				strings.Join(path, "/"), len(filePieceLayers), wantHashes)
			return
		}
		var hashes [][merkle.HashSize]byte
		hashes, err = merkle.CompactLayerToSliceHashes(filePieceLayers)
		if err != nil {
			return
		}
		root := merkle.RootWithPadHash(hashes, padHash)
		if root != piecesRoot.Value {
			err = fmt.Errorf("file %q: expected hash %x got %x", strings.Join(path, "/"), piecesRoot.Value, root)
			return
		}
	})
	return
}

// Returns the padding hash for the hash layer corresponding to a piece. Only the 16KiB piece length
// has the zero hash, because its piece layer is the block layer.
func HashForPiecePad(pieceLength int64) (hash [32]byte) {
	return merkle.PadHashForLength(pieceLength)
}
