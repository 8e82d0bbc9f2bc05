package metainfo

import (
	"bufio"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anacrolix/torrent/bencode"
)

type MetaInfo struct {
	InfoBytes    bencode.Bytes `bencode:"info,omitempty"`          // BEP 3
	Announce     string        `bencode:"announce,omitempty"`      // BEP 3
	AnnounceList AnnounceList  `bencode:"announce-list,omitempty"` // BEP 12
	// Some torrents in the wild have a string here.
	CreationDate int64   `bencode:"creation date,omitempty,ignore_unmarshal_type_error"`
	Comment      string  `bencode:"comment,omitempty"`
	CreatedBy    string  `bencode:"created by,omitempty"`
	UrlList      UrlList `bencode:"url-list,omitempty"` // BEP 19 WebSeeds
	// BEP 52. Maps a file's pieces root to its concatenated piece layer hashes.
	PieceLayers map[string]string `bencode:"piece layers,omitempty"`
}

// Load a MetaInfo from an io.Reader. Returns a non-nil error in case of failure.
func Load(r io.Reader) (*MetaInfo, error) {
	var mi MetaInfo
	d := bencode.NewDecoder(r)
	err := d.Decode(&mi)
	if err != nil {
		return nil, err
	}
	return &mi, nil
}

// Convenience function for loading a MetaInfo from a file.
func LoadFromFile(filename string) (*MetaInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bufio.Reader
	buf.Reset(f)
	return Load(&buf)
}

func (mi *MetaInfo) UnmarshalInfo() (info Info, err error) {
	err = bencode.Unmarshal(mi.InfoBytes, &info)
	return
}

// Encodes info and sets it as the MetaInfo's info dict.
func (mi *MetaInfo) SetInfo(info *Info) (err error) {
	mi.InfoBytes, err = bencode.Marshal(info)
	return
}

// The v1 infohash. Only meaningful if the info has v1 fields.
func (mi *MetaInfo) HashInfoBytes() [sha1.Size]byte {
	return sha1.Sum(mi.InfoBytes)
}

// The v2 infohash. Only meaningful if the info has v2 fields.
func (mi *MetaInfo) HashInfoBytesV2() [sha256.Size]byte {
	return sha256.Sum256(mi.InfoBytes)
}

// Encode to bencoded form.
func (mi MetaInfo) Write(w io.Writer) error {
	return bencode.NewEncoder(w).Encode(mi)
}

// Set good default values in preparation for creating a new MetaInfo file.
func (mi *MetaInfo) SetDefaults() {
	mi.CreatedBy = "github.com/piecetree/piecetree"
	mi.CreationDate = time.Now().Unix()
}

// Checks the piece layers against the file tree of the info. See ValidatePieceLayers.
func (mi *MetaInfo) ValidatePieceLayers() error {
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return fmt.Errorf("unmarshalling info: %w", err)
	}
	if !info.HasV2() {
		return nil
	}
	return ValidatePieceLayers(mi.PieceLayers, info.FileTree, info.PieceLength)
}
