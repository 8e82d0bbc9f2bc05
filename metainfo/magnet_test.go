package metainfo

import (
	"encoding/hex"
	"testing"

	qt "github.com/go-quicktest/qt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exampleMagnetURI = `magnet:?xt=urn:btih:51340689c960f0778a4387aef9b4b52fd08390cd&dn=Some+Movie+%281985%29&tr=http%3A%2F%2Fhttp.was.great%21&tr=udp%3A%2F%2Fsome.tracker%3A6969`
	exampleMagnet    = Magnet{
		DisplayName: "Some Movie (1985)",
		Trackers: []string{
			"http://http.was.great!",
			"udp://some.tracker:6969",
		},
	}
)

func init() {
	hex.Decode(exampleMagnet.InfoHash.Value[:], []byte("51340689c960f0778a4387aef9b4b52fd08390cd"))
	exampleMagnet.InfoHash.Ok = true
}

func TestMagnetString(t *testing.T) {
	m, err := ParseMagnetUri(exampleMagnet.String())
	require.NoError(t, err)
	assert.EqualValues(t, exampleMagnet, m)
}

func TestParseMagnetURI(t *testing.T) {
	m, err := ParseMagnetUri(exampleMagnetURI)
	require.NoError(t, err)
	assert.EqualValues(t, exampleMagnet, m)

	_, err = ParseMagnetUri("magnet:?xt=urn:btih:ZOCMZQIPFFW7OLLMIC5HUB6BPCSDEOQU")
	assert.NoError(t, err)

	for _, uri := range []string{
		"",
		"http://example.com/",
		"magnet:?xt=urn:sha1:YNCKHTQCWBTRNJIV4WNAE52SJUQCZO5C",
		"magnet:?xt=urn:btih:this hash is really broken",
		"magnet:?xt=urn:btmh:1220",
	} {
		_, err = ParseMagnetUri(uri)
		assert.Error(t, err, uri)
	}
}

func TestParseMagnetV2(t *testing.T) {
	const v2Only = "magnet:?xt=urn:btmh:1220caf1e1c30e81cb361b9ee167c4aa64228a7fa4fa9f6105232b28ad099f3a302e&dn=bittorrent-v2-test"

	m, err := ParseMagnetUri(v2Only)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsFalse(m.InfoHash.Ok))
	qt.Check(t, qt.IsTrue(m.V2InfoHash.Ok))
	qt.Check(t, qt.Equals(hex.EncodeToString(m.V2InfoHash.Value[:]), "caf1e1c30e81cb361b9ee167c4aa64228a7fa4fa9f6105232b28ad099f3a302e"))
	qt.Check(t, qt.HasLen(m.Params, 0))
	qt.Check(t, qt.Equals(m.String(), v2Only))

	const hybrid = "magnet:?xt=urn:btih:631a31dd0a46257d5078c0dee4e66e26f73e42ac&xt=urn:btmh:1220d8dd32ac93357c368556af3ac1d95c9d76bd0dff6fa9833ecdac3d53134efabb&dn=bittorrent-v1-v2-hybrid-test"

	m, err = ParseMagnetUri(hybrid)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(m.InfoHash.Ok))
	qt.Check(t, qt.Equals(hex.EncodeToString(m.InfoHash.Value[:]), "631a31dd0a46257d5078c0dee4e66e26f73e42ac"))
	qt.Assert(t, qt.IsTrue(m.V2InfoHash.Ok))
	qt.Check(t, qt.Equals(hex.EncodeToString(m.V2InfoHash.Value[:]), "d8dd32ac93357c368556af3ac1d95c9d76bd0dff6fa9833ecdac3d53134efabb"))
	qt.Check(t, qt.Equals(m.DisplayName, "bittorrent-v1-v2-hybrid-test"))
	qt.Check(t, qt.HasLen(m.Params, 0))
	qt.Check(t, qt.Equals(m.String(), hybrid))
}

func TestParseMagnetKeepsUnknownParams(t *testing.T) {
	m, err := ParseMagnetUri("magnet:?xt=urn:btih:51340689c960f0778a4387aef9b4b52fd08390cd&xt=urn:sha1:YNCKHTQCWBTRNJIV4WNAE52SJUQCZO5C&ws=http%3A%2F%2Fa%2F&x.pe=1.2.3.4%3A5")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(m.Params["xt"], []string{"urn:sha1:YNCKHTQCWBTRNJIV4WNAE52SJUQCZO5C"}))
	qt.Check(t, qt.DeepEquals(m.Params["ws"], []string{"http://a/"}))
	qt.Check(t, qt.DeepEquals(m.Params["x.pe"], []string{"1.2.3.4:5"}))
}
