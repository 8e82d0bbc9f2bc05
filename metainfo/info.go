package metainfo

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"

	g "github.com/anacrolix/generics"
)

const V1HashSize = 20

// The info dictionary. See BEP 3 and BEP 52.
type Info struct {
	PieceLength int64 `bencode:"piece length"` // BEP3
	// BEP 3. This can be omitted because isn't needed in non-hybrid v2 infos. See BEP 52.
	Pieces []byte `bencode:"pieces,omitempty"`
	Name   string `bencode:"name"`             // BEP3
	Length int64  `bencode:"length,omitempty"` // BEP3, mutually exclusive with Files
	ExtendedFileAttrs
	Private *bool      `bencode:"private,omitempty"` // BEP27
	Files   []FileInfo `bencode:"files,omitempty"`   // BEP3, mutually exclusive with Length

	// BEP 52 (BitTorrent v2)
	MetaVersion int64     `bencode:"meta version,omitempty"`
	FileTree    *FileTree `bencode:"file tree,omitempty"`
}

// Whether the Info can be used as a v2 info dict, including having a V2 infohash.
func (info *Info) HasV2() bool {
	return info.MetaVersion == 2 && info.FileTree != nil
}

func (info *Info) HasV1() bool {
	// See Upgrade Path in BEP 52.
	return info.MetaVersion == 0 || info.MetaVersion == 1 || info.Files != nil || info.Length != 0 || len(info.Pieces) != 0
}

func (info *Info) IsHybrid() bool {
	return info.HasV1() && info.HasV2()
}

func (info *Info) TotalLength() (ret int64) {
	for fi := range info.UpvertedFiles() {
		ret += fi.Length
	}
	return
}

func (info *Info) NumPieces() (num int) {
	if info.HasV2() {
		for f := range info.TorrentFiles() {
			num += f.NumPieces()
		}
		return
	}
	return len(info.Pieces) / V1HashSize
}

// Whether all files share the same top-level directory name. If they don't, Info.Name is usually
// used.
func (info *Info) IsDir() bool {
	if info.HasV2() {
		return info.FileTree.IsDir()
	}
	return len(info.Files) != 0
}

// The content files, converted up from the old single-file in the parent info dict if necessary.
// For v2 infos the file tree is used, so padding files are excluded.
func (info *Info) UpvertedFiles() iter.Seq[FileInfo] {
	if info.HasV2() {
		return info.FileTree.UpvertedFiles(info.PieceLength)
	}
	return info.UpvertedV1Files()
}

// UpvertedFiles but specific to the files listed in the v1 info fields. This will include padding
// files for example that wouldn't appear in v2 file trees.
func (info *Info) UpvertedV1Files() iter.Seq[FileInfo] {
	return func(yield func(FileInfo) bool) {
		if len(info.Files) == 0 {
			yield(FileInfo{
				Length: info.Length,
				// Callers should determine that Info.Name is the basename, and thus a regular
				// file.
				Path: nil,
			})
			return
		}
		var offset int64
		for _, fi := range info.Files {
			fi.TorrentOffset = offset
			offset += fi.Length
			if !yield(fi) {
				return
			}
		}
	}
}

// Maps each content file to the pieces that contain it. Padding files are folded into the
// preceding file's Padding.
func (info *Info) TorrentFiles() iter.Seq[TorrentFile] {
	return func(yield func(TorrentFile) bool) {
		files := slices.Collect(info.UpvertedFiles())
		if !info.HasV2() {
			files = slices.DeleteFunc(files, func(fi FileInfo) bool { return fi.IsPadding() })
		}
		for i, fi := range files {
			tf := TorrentFile{
				Path:          fi.BestPath(),
				Length:        fi.Length,
				TorrentOffset: fi.TorrentOffset,
				PiecesRoot:    fi.PiecesRoot,
			}
			tf.StartPieceIndex = int(fi.TorrentOffset / info.PieceLength)
			tf.EndPieceIndex = int((fi.TorrentOffset+fi.Length+info.PieceLength-1)/info.PieceLength) - 1
			if fi.Length == 0 {
				tf.EndPieceIndex = tf.StartPieceIndex - 1
			}
			if i+1 < len(files) {
				tf.Padding = files[i+1].TorrentOffset - (fi.TorrentOffset + fi.Length)
			}
			if !yield(tf) {
				return
			}
		}
	}
}

// Checks the fields that hashing relies on for consistency.
func (info *Info) Validate() error {
	if info.PieceLength <= 0 {
		return errors.New("piece length must be positive")
	}
	if info.HasV2() {
		if err := info.checkFileLengths(info.FileTree.UpvertedFiles(info.PieceLength)); err != nil {
			return err
		}
	}
	if info.HasV1() {
		if err := info.checkFileLengths(info.UpvertedV1Files()); err != nil {
			return err
		}
	}
	if info.HasV1() && len(info.Pieces)%V1HashSize != 0 {
		return fmt.Errorf("pieces length %d is not a multiple of %d", len(info.Pieces), V1HashSize)
	}
	if info.IsHybrid() {
		v1Pieces := len(info.Pieces) / V1HashSize
		v2Pieces := info.NumPieces()
		if v1Pieces != v2Pieces {
			return fmt.Errorf("hybrid torrent has %d v1 pieces and %d v2 pieces", v1Pieces, v2Pieces)
		}
	}
	return nil
}

// Rejects negative file lengths, and files that end too far out for piece arithmetic to work.
func (info *Info) checkFileLengths(files iter.Seq[FileInfo]) error {
	for fi := range files {
		if fi.Length < 0 {
			return fmt.Errorf("file %q has negative length %d", strings.Join(fi.Path, "/"), fi.Length)
		}
		if fi.TorrentOffset < 0 || fi.Length > math.MaxInt64-info.PieceLength-fi.TorrentOffset {
			return fmt.Errorf("file %q ends past the largest torrent length", strings.Join(fi.Path, "/"))
		}
	}
	return nil
}

// A content file and the range of pieces it occupies.
type TorrentFile struct {
	Path   []string
	Length int64
	// Bytes after the file up to the next piece boundary, present when files are piece aligned.
	Padding       int64
	TorrentOffset int64
	// Inclusive. For an empty file EndPieceIndex is StartPieceIndex-1.
	StartPieceIndex int
	EndPieceIndex   int
	// Absent for empty files and v1-only torrents.
	PiecesRoot g.Option[[32]byte]
}

func (tf TorrentFile) NumPieces() int {
	return tf.EndPieceIndex - tf.StartPieceIndex + 1
}

func (tf TorrentFile) ContainsPiece(index int) bool {
	return index >= tf.StartPieceIndex && index <= tf.EndPieceIndex
}

const (
	minimumPieceLength   = 16 * 1024
	targetPieceCountLog2 = 10
	targetPieceCountMin  = 1 << targetPieceCountLog2
)

// Target piece count should be < targetPieceCountMax
const targetPieceCountMax = targetPieceCountMin << 1

// Choose a good piecelength.
func ChoosePieceLength(totalLength int64) (pieceLength int64) {
	// Must be a power of 2.
	// Must be a multiple of 16KiB
	// Prefer to provide around 1024..2048 pieces.
	pieceLength = minimumPieceLength
	pieces := totalLength / pieceLength
	for pieces >= targetPieceCountMax {
		pieceLength <<= 1
		pieces >>= 1
	}
	return
}
