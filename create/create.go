// Package create builds v1, v2 and hybrid torrent metainfo from files on disk.
package create

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/metainfo"
	"github.com/piecetree/piecetree/piecehash"
)

type Version int

const (
	Hybrid Version = iota
	V1
	V2
)

func (v Version) String() string {
	switch v {
	case Hybrid:
		return "hybrid"
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

func ParseVersion(s string) (Version, error) {
	for _, v := range []Version{Hybrid, V1, V2} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown torrent version %q", s)
}

func (v Version) hasV1() bool {
	return v == V1 || v == Hybrid
}

func (v Version) hasV2() bool {
	return v == V2 || v == Hybrid
}

type Options struct {
	// Chosen from the total length if zero.
	PieceLength int64
	// The zero value makes a hybrid torrent.
	Version Version
	// Defaults to the base name of the root.
	Name string
	// Files hashed at once. Defaults to GOMAXPROCS. Ignored for v1, which hashes across file
	// boundaries.
	Concurrency int
	// Tracker tiers. The first tracker is also used as the announce URL.
	Trackers [][]string
	WebSeeds []string
	Comment  string
	Logger   *log.Logger
}

// A file to include in a torrent.
type File struct {
	// Path within the torrent.
	Path []string
	// Where to read the file from.
	OsPath string
	Length int64
}

// Walks root, which may be a single file, and builds metainfo for it.
func Build(ctx context.Context, root string, opts Options) (*metainfo.MetaInfo, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(root)
	}
	if !fi.IsDir() {
		return BuildFromFiles(ctx, []File{{OsPath: root, Length: fi.Size()}}, opts)
	}
	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrap(err, "getting relative path")
		}
		files = append(files, File{
			Path:   strings.Split(relPath, string(filepath.Separator)),
			OsPath: path,
			Length: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files under %q", root)
	}
	return BuildFromFiles(ctx, files, opts)
}

// Builds metainfo for files. A single file with an empty path makes a single-file torrent named
// opts.Name.
func BuildFromFiles(ctx context.Context, files []File, opts Options) (*metainfo.MetaInfo, error) {
	if opts.Name == "" {
		return nil, errors.New("torrent name not set")
	}
	if opts.Logger == nil {
		logger := log.Default.WithNames("create")
		opts.Logger = &logger
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	files = slices.Clone(files)
	// File tree order, so v1 files, v2 files and pieces all agree.
	slices.SortFunc(files, func(a, b File) int {
		return slices.Compare(a.Path, b.Path)
	})
	singleFile := len(files) == 1 && len(files[0].Path) == 0
	if opts.PieceLength == 0 {
		var total int64
		for _, f := range files {
			total += f.Length
		}
		opts.PieceLength = metainfo.ChoosePieceLength(total)
	}
	if opts.Version.hasV2() {
		if _, err := merkle.PieceLayerIndex(opts.PieceLength); err != nil {
			return nil, err
		}
	}
	b := builder{
		opts:       opts,
		files:      files,
		singleFile: singleFile,
	}
	var info metainfo.Info
	var err error
	if opts.Version.hasV2() {
		info, err = b.buildV2(ctx)
	} else {
		info, err = b.buildV1(ctx)
	}
	if err != nil {
		return nil, err
	}
	mi := &metainfo.MetaInfo{}
	mi.SetDefaults()
	mi.Comment = opts.Comment
	mi.UrlList = opts.WebSeeds
	if len(opts.Trackers) != 0 {
		mi.AnnounceList = opts.Trackers
		if len(opts.Trackers[0]) != 0 {
			mi.Announce = opts.Trackers[0][0]
		}
	}
	err = mi.SetInfo(&info)
	if err != nil {
		return nil, errors.Wrap(err, "encoding info")
	}
	if b.v2 != nil {
		mi.PieceLayers = b.v2.PieceLayers()
	}
	opts.Logger.Levelf(log.Debug, "built %v torrent %q: %v files, %v pieces", opts.Version, opts.Name, len(files), info.NumPieces())
	return mi, nil
}

type builder struct {
	opts       Options
	files      []File
	singleFile bool
	v2         *piecehash.V2
}

func (b *builder) v1Info() metainfo.Info {
	info := metainfo.Info{
		Name:        b.opts.Name,
		PieceLength: b.opts.PieceLength,
	}
	if b.singleFile {
		info.Length = b.files[0].Length
	}
	return info
}

func (b *builder) buildV1(ctx context.Context) (info metainfo.Info, err error) {
	info = b.v1Info()
	pw := newV1PieceWriter(b.opts.PieceLength)
	for _, f := range b.files {
		if !b.singleFile {
			info.Files = append(info.Files, metainfo.FileInfo{
				Path:   f.Path,
				Length: f.Length,
			})
		}
		err = readFile(ctx, f, b.opts.PieceLength, func(chunk []byte) {
			pw.Write(chunk)
		})
		if err != nil {
			return
		}
	}
	info.Pieces = pw.Finish()
	return
}

func (b *builder) buildV2(ctx context.Context) (info metainfo.Info, err error) {
	results := make([]fileHashes, len(b.files))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Concurrency)
	for i, f := range b.files {
		last := i == len(b.files)-1
		eg.Go(func() (err error) {
			results[i], err = hashFile(ctx, f, b.opts.PieceLength, b.opts.Version.hasV1(), !last)
			if err != nil {
				return
			}
			b.opts.Logger.Levelf(log.Debug, "hashed %q: %v bytes", f.OsPath, f.Length)
			return
		})
	}
	err = eg.Wait()
	if err != nil {
		return
	}
	if b.opts.Version.hasV1() {
		info = b.v1Info()
	} else {
		info = metainfo.Info{
			Name:        b.opts.Name,
			PieceLength: b.opts.PieceLength,
		}
	}
	info.MetaVersion = 2
	info.FileTree = &metainfo.FileTree{}
	trees := make(map[[32]byte]*merkle.ReadOnlyLayers)
	for i, f := range b.files {
		res := results[i]
		path := f.Path
		if b.singleFile {
			path = []string{b.opts.Name}
		}
		info.FileTree.AddFile(path, f.Length, res.root)
		if res.tree != nil {
			trees[res.root.Value] = res.tree
		}
		if !b.opts.Version.hasV1() {
			continue
		}
		info.Pieces = append(info.Pieces, res.v1Pieces...)
		if b.singleFile {
			continue
		}
		info.Files = append(info.Files, metainfo.FileInfo{
			Path:   f.Path,
			Length: f.Length,
		})
		if pad := padding(f.Length, b.opts.PieceLength); pad != 0 && i+1 < len(b.files) {
			info.Files = append(info.Files, metainfo.PaddingFileInfo(pad))
		}
	}
	b.v2, err = piecehash.NewV2(info.PieceLength, slices.Collect(info.TorrentFiles()), trees)
	if err != nil {
		err = errors.Wrap(err, "checking built piece hashes")
	}
	return
}

// Bytes needed after a file of the given length to reach a piece boundary.
func padding(length, pieceLength int64) int64 {
	return (pieceLength - length%pieceLength) % pieceLength
}

type fileHashes struct {
	// Absent for empty files.
	root g.Option[[32]byte]
	// Set for files larger than a piece.
	tree *merkle.ReadOnlyLayers
	// SHA1 hashes of the file's pieces, for hybrid torrents.
	v1Pieces []byte
}
