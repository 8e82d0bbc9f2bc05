package metainfo

import (
	"bytes"
	"math"
	"slices"
	"testing"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/torrent/bencode"
	qt "github.com/go-quicktest/qt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"github.com/piecetree/piecetree/merkle"
)

func testUnmarshal(t *testing.T, input string, expected *MetaInfo) {
	var actual MetaInfo
	err := bencode.Unmarshal([]byte(input), &actual)
	if expected == nil {
		assert.Error(t, err)
		return
	}
	assert.NoError(t, err)
	assert.EqualValues(t, *expected, actual)
}

func TestUnmarshal(t *testing.T) {
	testUnmarshal(t, `de`, &MetaInfo{})
	testUnmarshal(t, `d4:infoe`, nil)
	testUnmarshal(t, `d4:infoabce`, nil)
	testUnmarshal(t, `d4:infodee`, &MetaInfo{InfoBytes: []byte("de")})
}

func TestStringCreationDate(t *testing.T) {
	var mi MetaInfo
	assert.NoError(t, bencode.Unmarshal([]byte("d13:creation date23:29.03.2018 22:18:14 UTC4:infodee"), &mi))
}

func TestUrlList(t *testing.T) {
	var mi MetaInfo
	require.NoError(t, bencode.Unmarshal([]byte("d8:url-list9:http://a/e"), &mi))
	assert.EqualValues(t, UrlList{"http://a/"}, mi.UrlList)
	require.NoError(t, bencode.Unmarshal([]byte("d8:url-listl9:http://a/9:http://b/ee"), &mi))
	assert.EqualValues(t, UrlList{"http://a/", "http://b/"}, mi.UrlList)
}

func randRoot() g.Option[[32]byte] {
	var root [32]byte
	frand.Read(root[:])
	return g.Some(root)
}

func TestFileTreeRoundTrip(t *testing.T) {
	var ft FileTree
	aRoot := randRoot()
	ft.AddFile([]string{"b", "c"}, 5, randRoot())
	ft.AddFile([]string{"a"}, 1<<20, aRoot)
	ft.AddFile([]string{"empty"}, 0, g.None[[32]byte]())
	b, err := bencode.Marshal(ft)
	qt.Assert(t, qt.IsNil(err))
	var decoded FileTree
	qt.Assert(t, qt.IsNil(bencode.Unmarshal(b, &decoded)))
	qt.Check(t, qt.DeepEquals(decoded, ft))
	qt.Check(t, qt.Equals(decoded.NumEntries(), 3))

	var paths [][]string
	var roots []g.Option[[32]byte]
	for fi := range decoded.UpvertedFiles(1 << 16) {
		paths = append(paths, fi.Path)
		roots = append(roots, fi.PiecesRoot)
	}
	qt.Check(t, qt.DeepEquals(paths, [][]string{{"a"}, {"b", "c"}, {"empty"}}))
	qt.Check(t, qt.Equals(roots[0], aRoot))
	qt.Check(t, qt.IsFalse(roots[2].Ok))
}

func TestFileTreeBadPiecesRoot(t *testing.T) {
	var ft FileTree
	err := ft.UnmarshalBencode([]byte("d1:ad0:d6:lengthi3e11:pieces root3:abceee"))
	qt.Check(t, qt.ErrorMatches(err, `"a": file pieces root has length 3`))
}

func TestTorrentFilesV2(t *testing.T) {
	const pieceLength = 4 * merkle.BlockSize
	info := Info{
		Name:        "x",
		PieceLength: pieceLength,
		MetaVersion: 2,
		FileTree:    &FileTree{},
	}
	info.FileTree.AddFile([]string{"a"}, pieceLength+1, randRoot())
	info.FileTree.AddFile([]string{"b"}, 0, g.None[[32]byte]())
	info.FileTree.AddFile([]string{"c"}, 10, randRoot())
	tfs := slices.Collect(info.TorrentFiles())
	qt.Assert(t, qt.HasLen(tfs, 3))
	a, b, c := tfs[0], tfs[1], tfs[2]
	qt.Check(t, qt.Equals(a.StartPieceIndex, 0))
	qt.Check(t, qt.Equals(a.EndPieceIndex, 1))
	qt.Check(t, qt.Equals(a.Padding, int64(pieceLength-1)))
	qt.Check(t, qt.Equals(b.TorrentOffset, int64(2*pieceLength)))
	qt.Check(t, qt.Equals(b.NumPieces(), 0))
	qt.Check(t, qt.Equals(b.EndPieceIndex, b.StartPieceIndex-1))
	qt.Check(t, qt.Equals(c.StartPieceIndex, 2))
	qt.Check(t, qt.Equals(c.EndPieceIndex, 2))
	qt.Check(t, qt.Equals(c.Padding, int64(0)))
	qt.Check(t, qt.Equals(info.NumPieces(), 3))
	qt.Check(t, qt.IsFalse(info.HasV1()))
	qt.Check(t, qt.Equals(info.TotalLength(), int64(pieceLength+11)))
	qt.Check(t, qt.IsNil(info.Validate()))
}

func TestTorrentFilesV1SkipsPadding(t *testing.T) {
	info := Info{
		Name:        "x",
		PieceLength: 10,
		Files: []FileInfo{
			{Path: []string{"a"}, Length: 15},
			PaddingFileInfo(5),
			{Path: []string{"b"}, Length: 3},
		},
		Pieces: make([]byte, 3*V1HashSize),
	}
	tfs := slices.Collect(info.TorrentFiles())
	qt.Assert(t, qt.HasLen(tfs, 2))
	qt.Check(t, qt.Equals(tfs[0].Padding, int64(5)))
	qt.Check(t, qt.Equals(tfs[1].StartPieceIndex, 2))
	qt.Check(t, qt.IsNil(info.Validate()))
}

func TestValidateHybridPieceCounts(t *testing.T) {
	info := Info{
		Name:        "x",
		PieceLength: merkle.BlockSize,
		Length:      merkle.BlockSize * 2,
		Pieces:      make([]byte, V1HashSize),
		MetaVersion: 2,
		FileTree:    &FileTree{},
	}
	info.FileTree.AddFile([]string{"x"}, merkle.BlockSize*2, randRoot())
	qt.Check(t, qt.IsTrue(info.IsHybrid()))
	qt.Check(t, qt.ErrorMatches(info.Validate(), `hybrid torrent has 1 v1 pieces and 2 v2 pieces`))
	info.Pieces = make([]byte, 2*V1HashSize)
	qt.Check(t, qt.IsNil(info.Validate()))
}

func TestValidatePieceLayers(t *testing.T) {
	const pieceLength = 2 * merkle.BlockSize
	layer := frand.Bytes(3 * merkle.HashSize)
	root := merkle.HashLayer(layer, 1)
	var ft FileTree
	ft.AddFile([]string{"big"}, 3*pieceLength, g.Some(root))
	ft.AddFile([]string{"small"}, pieceLength, randRoot())
	pieceLayers := map[string]string{string(root[:]): string(layer)}
	qt.Check(t, qt.IsNil(ValidatePieceLayers(pieceLayers, &ft, pieceLength)))

	qt.Check(t, qt.ErrorMatches(
		ValidatePieceLayers(nil, &ft, pieceLength),
		`no piece layers for file "big"`))
	qt.Check(t, qt.ErrorMatches(
		ValidatePieceLayers(map[string]string{string(root[:]): string(layer[:64])}, &ft, pieceLength),
		`file "big": piece layers has 64 bytes, expected 3 hashes`))
	bad := bytes.Clone(layer)
	bad[40] ^= 1
	qt.Check(t, qt.ErrorMatches(
		ValidatePieceLayers(map[string]string{string(root[:]): string(bad)}, &ft, pieceLength),
		`file "big": expected hash .*`))
	qt.Check(t, qt.ErrorIs(ValidatePieceLayers(pieceLayers, &ft, 3*merkle.BlockSize), merkle.ErrBadPieceLength))
}

func TestNegativeFileLength(t *testing.T) {
	var ft FileTree
	err := ft.UnmarshalBencode([]byte("d4:evild0:d6:lengthi-5e11:pieces root32:" + string(make([]byte, 32)) + "eee"))
	qt.Check(t, qt.ErrorMatches(err, `"evil": file has negative length -5`))

	// Trees built in code skip decoding, so validation catches them too.
	root := randRoot()
	ft = FileTree{}
	ft.AddFile([]string{"evil"}, -5, root)
	qt.Check(t, qt.ErrorMatches(
		ValidatePieceLayers(map[string]string{string(root.Value[:]): ""}, &ft, 1<<20),
		`file "evil" has negative length -5`))
	info := Info{
		Name:        "x",
		PieceLength: 1 << 20,
		MetaVersion: 2,
		FileTree:    &ft,
	}
	qt.Check(t, qt.ErrorMatches(info.Validate(), `file "evil" has negative length -5`))

	v1 := Info{
		Name:        "x",
		PieceLength: 1 << 20,
		Files:       []FileInfo{{Path: []string{"evil"}, Length: -1}},
	}
	qt.Check(t, qt.ErrorMatches(v1.Validate(), `file "evil" has negative length -1`))
}

func TestValidateHugeFiles(t *testing.T) {
	info := Info{
		Name:        "x",
		PieceLength: merkle.BlockSize,
		MetaVersion: 2,
		FileTree:    &FileTree{},
	}
	info.FileTree.AddFile([]string{"a"}, math.MaxInt64-1, randRoot())
	qt.Check(t, qt.ErrorMatches(info.Validate(), `file "a" ends past the largest torrent length`))

	info.FileTree = &FileTree{}
	info.FileTree.AddFile([]string{"a"}, 1<<62, randRoot())
	qt.Check(t, qt.IsNil(info.Validate()))
	info.FileTree.AddFile([]string{"b"}, 1<<62, randRoot())
	qt.Check(t, qt.ErrorMatches(info.Validate(), `file "b" ends past the largest torrent length`))
}

func TestHashForPiecePad(t *testing.T) {
	for _, pieceLength := range []int64{merkle.BlockSize, 2 * merkle.BlockSize, 1 << 20} {
		blocks := make([][32]byte, pieceLength/merkle.BlockSize)
		qt.Check(t, qt.Equals(HashForPiecePad(pieceLength), merkle.Root(blocks)))
	}
	qt.Check(t, qt.Equals(HashForPiecePad(merkle.BlockSize), [32]byte{}))
}

func TestChoosePieceLength(t *testing.T) {
	qt.Check(t, qt.Equals(ChoosePieceLength(0), int64(16<<10)))
	qt.Check(t, qt.Equals(ChoosePieceLength(1<<30), int64(1<<20)))
	for _, total := range []int64{1, 1 << 20, 5 << 30, 123456789} {
		pl := ChoosePieceLength(total)
		_, err := merkle.PieceLayerIndex(pl)
		qt.Check(t, qt.IsNil(err))
		qt.Check(t, qt.IsTrue(total/pl < 2048))
	}
}

func TestSetInfoRoundTrip(t *testing.T) {
	info := Info{
		Name:        "x",
		PieceLength: merkle.BlockSize,
		MetaVersion: 2,
		FileTree:    &FileTree{},
	}
	info.FileTree.AddFile([]string{"x"}, 5, randRoot())
	var mi MetaInfo
	require.NoError(t, mi.SetInfo(&info))
	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)
	decoded, err := loaded.UnmarshalInfo()
	require.NoError(t, err)
	assert.Equal(t, info, decoded)
	assert.Equal(t, mi.HashInfoBytesV2(), loaded.HashInfoBytesV2())
	assert.NoError(t, loaded.ValidatePieceLayers())
}
