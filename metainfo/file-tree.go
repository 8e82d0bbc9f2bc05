package metainfo

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/torrent/bencode"
)

const FileTreePropertiesKey = ""

type FileTreeFile struct {
	Length     int64  `bencode:"length"`
	PiecesRoot string `bencode:"pieces root,omitempty"`
}

// BEP 52 file tree. A node is either a file, with its properties in File, or a directory of named
// children.
type FileTree struct {
	File FileTreeFile
	Dir  map[string]FileTree
}

var (
	_ bencode.Unmarshaler = (*FileTree)(nil)
	_ bencode.Marshaler   = (*FileTree)(nil)
)

func (ft *FileTree) UnmarshalBencode(bytes []byte) (err error) {
	var dir map[string]bencode.Bytes
	err = bencode.Unmarshal(bytes, &dir)
	if err != nil {
		return
	}
	if propBytes, ok := dir[FileTreePropertiesKey]; ok {
		err = bencode.Unmarshal(propBytes, &ft.File)
		if err != nil {
			return
		}
		if ft.File.Length < 0 {
			return fmt.Errorf("file has negative length %d", ft.File.Length)
		}
		// Must be 32 bytes for meta version 2 and non-empty files. See BEP 52.
		if ft.File.Length != 0 && len(ft.File.PiecesRoot) != 32 {
			return fmt.Errorf("file pieces root has length %d", len(ft.File.PiecesRoot))
		}
	}
	delete(dir, FileTreePropertiesKey)
	if len(dir) == 0 {
		return
	}
	g.MakeMapWithCap(&ft.Dir, len(dir))
	for key, bytes := range dir {
		var sub FileTree
		err = sub.UnmarshalBencode(bytes)
		if err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		ft.Dir[key] = sub
	}
	return
}

func (ft FileTree) MarshalBencode() ([]byte, error) {
	if !ft.IsDir() {
		return bencode.Marshal(map[string]FileTreeFile{
			FileTreePropertiesKey: ft.File,
		})
	}
	return bencode.Marshal(ft.Dir)
}

func (ft *FileTree) NumEntries() (num int) {
	num = len(ft.Dir)
	if g.MapContains(ft.Dir, FileTreePropertiesKey) {
		num--
	}
	return
}

func (ft *FileTree) IsDir() bool {
	return ft.NumEntries() != 0
}

func (ft *FileTree) orderedKeys() []string {
	return slices.Sorted(maps.Keys(ft.Dir))
}

// Inserts a file at path, creating intermediate directories.
func (ft *FileTree) AddFile(path []string, length int64, piecesRoot g.Option[[32]byte]) {
	if len(path) == 0 {
		ft.File.Length = length
		ft.File.PiecesRoot = ""
		if piecesRoot.Ok {
			ft.File.PiecesRoot = string(piecesRoot.Value[:])
		}
		return
	}
	g.MakeMapIfNil(&ft.Dir)
	sub := ft.Dir[path[0]]
	sub.AddFile(path[1:], length, piecesRoot)
	ft.Dir[path[0]] = sub
}

// Yields files in file tree order, with torrent offsets aligned to pieceLength as v2 requires.
func (ft *FileTree) UpvertedFiles(pieceLength int64) iter.Seq[FileInfo] {
	return func(yield func(FileInfo) bool) {
		var offset int64
		ft.upvertedFiles(nil, func(fi FileInfo) bool {
			fi.TorrentOffset = offset
			offset = (offset + fi.Length + pieceLength - 1) / pieceLength * pieceLength
			return yield(fi)
		})
	}
}

func (ft *FileTree) upvertedFiles(path []string, out func(fi FileInfo) bool) bool {
	if ft.IsDir() {
		for _, key := range ft.orderedKeys() {
			if key == FileTreePropertiesKey {
				continue
			}
			sub := g.MapMustGet(ft.Dir, key)
			if !sub.upvertedFiles(append(path, key), out) {
				return false
			}
		}
		return true
	}
	return out(FileInfo{
		Length: ft.File.Length,
		Path:   append([]string(nil), path...),
		// BEP 52 requires paths be UTF-8 if possible.
		PathUtf8:   append([]string(nil), path...),
		PiecesRoot: ft.PiecesRootAsByteArray(),
	})
}

// Visits every node in file tree order.
func (ft *FileTree) Walk(path []string, f func(path []string, ft *FileTree)) {
	f(path, ft)
	for _, key := range ft.orderedKeys() {
		if key == FileTreePropertiesKey {
			continue
		}
		sub := ft.Dir[key]
		sub.Walk(append(path, key), f)
	}
}

func (ft *FileTree) PiecesRootAsByteArray() (ret g.Option[[32]byte]) {
	if ft.File.Length == 0 || len(ft.File.PiecesRoot) != 32 {
		return
	}
	copy(ret.Value[:], ft.File.PiecesRoot)
	ret.Ok = true
	return
}
