package metainfo

import (
	"github.com/anacrolix/torrent/bencode"
)

// Web seed URLs. See BEP 19. Some torrents give a single string rather than a list.
type UrlList []string

var _ bencode.Unmarshaler = (*UrlList)(nil)

func (me *UrlList) UnmarshalBencode(b []byte) (err error) {
	if len(b) < 1 {
		return
	}
	if b[0] == 'l' {
		var l []string
		err = bencode.Unmarshal(b, &l)
		*me = l
		return
	}
	var s string
	err = bencode.Unmarshal(b, &s)
	*me = UrlList{s}
	return
}
