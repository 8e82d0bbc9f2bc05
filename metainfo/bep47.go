package metainfo

import (
	"fmt"
	"strings"
)

// See BEP 47. This is common to both Info and FileInfo.
type ExtendedFileAttrs struct {
	Attr        string   `bencode:"attr,omitempty" json:"attr,omitempty"`
	SymlinkPath []string `bencode:"symlink path,omitempty" json:"symlink path,omitempty"`
	Sha1        string   `bencode:"sha1,omitempty" json:"sha1,omitempty"`
}

func (me ExtendedFileAttrs) IsPadding() bool {
	return strings.ContainsRune(me.Attr, 'p')
}

// A BEP 47 padding file of the given length, as used to align files in hybrid torrents.
func PaddingFileInfo(length int64) FileInfo {
	return FileInfo{
		Length: length,
		Path:   []string{".pad", fmt.Sprint(length)},
		ExtendedFileAttrs: ExtendedFileAttrs{
			Attr: "p",
		},
	}
}
