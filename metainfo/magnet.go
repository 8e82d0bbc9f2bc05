package metainfo

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	g "github.com/anacrolix/generics"
	"github.com/multiformats/go-multihash"
)

// Magnet link components. At least one of the infohashes is set.
type Magnet struct {
	InfoHash    g.Option[[sha1.Size]byte]
	V2InfoHash  g.Option[[sha256.Size]byte]
	Trackers    []string   // "tr" values
	DisplayName string     // "dn" value, if not empty
	Params      url.Values // All other values, such as "x.pe", "as", "xs" etc.
}

const (
	btihPrefix = "urn:btih:"
	btmhPrefix = "urn:btmh:"
)

func (m Magnet) String() string {
	vs := make(url.Values, len(m.Params)+len(m.Trackers)+2)
	for k, v := range m.Params {
		vs[k] = append([]string(nil), v...)
	}
	for _, tr := range m.Trackers {
		vs.Add("tr", tr)
	}
	if m.DisplayName != "" {
		vs.Add("dn", m.DisplayName)
	}
	// Transmission and Deluge both expect the xt urn to be unescaped, and Deluge wants it at the
	// start of the link.
	u := url.URL{
		Scheme: "magnet",
	}
	var queryParts []string
	if m.InfoHash.Ok {
		queryParts = append(queryParts, "xt="+btihPrefix+hex.EncodeToString(m.InfoHash.Value[:]))
	}
	if m.V2InfoHash.Ok {
		queryParts = append(queryParts, "xt="+btmhPrefix+hex.EncodeToString(v2InfohashMultihash(m.V2InfoHash.Value)))
	}
	if rem := vs.Encode(); rem != "" {
		queryParts = append(queryParts, rem)
	}
	u.RawQuery = strings.Join(queryParts, "&")
	return u.String()
}

// Parses v1, v2 and hybrid magnet links.
func ParseMagnetUri(uri string) (m Magnet, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		err = fmt.Errorf("error parsing uri: %w", err)
		return
	}
	if u.Scheme != "magnet" {
		err = fmt.Errorf("unexpected scheme %q", u.Scheme)
		return
	}
	q := u.Query()
	for _, xt := range q["xt"] {
		if hashStr, found := strings.CutPrefix(xt, btihPrefix); found {
			if m.InfoHash.Ok {
				err = errors.New("more than one v1 infohash found in magnet link")
				return
			}
			m.InfoHash.Value, err = parseEncodedV1Infohash(hashStr)
			if err != nil {
				err = fmt.Errorf("error parsing infohash %q: %w", hashStr, err)
				return
			}
			m.InfoHash.Ok = true
		} else if hashStr, found := strings.CutPrefix(xt, btmhPrefix); found {
			if m.V2InfoHash.Ok {
				err = errors.New("more than one v2 infohash found in magnet link")
				return
			}
			m.V2InfoHash.Value, err = parseV2Infohash(hashStr)
			if err != nil {
				err = fmt.Errorf("error parsing infohash %q: %w", hashStr, err)
				return
			}
			m.V2InfoHash.Ok = true
		} else {
			lazyAddParam(&m.Params, "xt", xt)
		}
	}
	if !m.InfoHash.Ok && !m.V2InfoHash.Ok {
		err = errors.New("missing infohash")
		return
	}
	q.Del("xt")
	m.DisplayName = popFirstValue(q, "dn").UnwrapOrZeroValue()
	m.Trackers = q["tr"]
	q.Del("tr")
	// Add everything we haven't consumed.
	copyParams(&m.Params, q)
	return
}

// Returns a magnet link carrying whichever infohashes the info has, the trackers and web seeds.
func (mi *MetaInfo) Magnet(info *Info) (m Magnet) {
	if info.HasV1() {
		m.InfoHash.Set(mi.HashInfoBytes())
	}
	if info.HasV2() {
		m.V2InfoHash.Set(mi.HashInfoBytesV2())
	}
	m.DisplayName = info.Name
	if mi.AnnounceList.OverridesAnnounce(mi.Announce) {
		m.Trackers = mi.AnnounceList.DistinctValues()
	} else if mi.Announce != "" {
		m.Trackers = []string{mi.Announce}
	}
	for _, ws := range mi.UrlList {
		lazyAddParam(&m.Params, "ws", ws)
	}
	return
}

func v2InfohashMultihash(ih [sha256.Size]byte) []byte {
	mh, err := multihash.Encode(ih[:], multihash.SHA2_256)
	if err != nil {
		panic(err)
	}
	return mh
}

func lazyAddParam(vs *url.Values, k, v string) {
	if *vs == nil {
		g.MakeMap(vs)
	}
	vs.Add(k, v)
}

func copyParams(dest *url.Values, src url.Values) {
	for k, vs := range src {
		for _, v := range vs {
			lazyAddParam(dest, k, v)
		}
	}
}

func parseEncodedV1Infohash(encoded string) (ih [sha1.Size]byte, err error) {
	decode := func() func(dst, src []byte) (int, error) {
		switch len(encoded) {
		case 40:
			return hex.Decode
		case 32:
			return base32.StdEncoding.Decode
		}
		return nil
	}()
	if decode == nil {
		err = fmt.Errorf("unhandled xt parameter encoding (encoded length %d)", len(encoded))
		return
	}
	n, err := decode(ih[:], []byte(encoded))
	if err != nil {
		err = fmt.Errorf("error decoding xt: %w", err)
		return
	}
	if n != sha1.Size {
		panic(n)
	}
	return
}

func parseV2Infohash(encoded string) (ih [sha256.Size]byte, err error) {
	b, err := hex.DecodeString(encoded)
	if err != nil {
		return
	}
	mh, err := multihash.Decode(b)
	if err != nil {
		return
	}
	if mh.Code != multihash.SHA2_256 || mh.Length != sha256.Size || len(mh.Digest) != sha256.Size {
		err = errors.New("bad multihash")
		return
	}
	copy(ih[:], mh.Digest)
	return
}

func popFirstValue(vs url.Values, key string) g.Option[string] {
	sl := vs[key]
	switch len(sl) {
	case 0:
		return g.None[string]()
	case 1:
		vs.Del(key)
		return g.Some(sl[0])
	default:
		vs[key] = sl[1:]
		return g.Some(sl[0])
	}
}
