// Creates and inspects v1, v2 and hybrid torrent metainfo.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anacrolix/bargle/v2"
	g "github.com/anacrolix/generics"
	app "github.com/anacrolix/gostdapp"
	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"

	"github.com/piecetree/piecetree/create"
	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/metainfo"
	"github.com/piecetree/piecetree/piecehash"
)

func main() {
	app.RunContext(mainErr)
}

func mainErr(ctx context.Context) error {
	p := bargle.NewParser()
	defer p.DoHelpIfHelping()
	runMap := func(m map[string]func() error) error {
		for key, value := range m {
			if p.Parse(bargle.Keyword(key)) {
				return value()
			}
		}
		p.Fail()
		return nil
	}
	parseFileName := func() (ret string) {
		if p.Parse(bargle.Positional("file", bargle.BuiltinUnmarshaler(&ret))) {
			return
		}
		p.SetError(errors.New("file not specified"))
		panic(p.Fail())
	}
	err := runMap(map[string]func() error{
		"create": func() error {
			opts, root, ok := parseCreate(p)
			if !ok {
				return nil
			}
			mi, err := create.Build(ctx, root, opts)
			if err != nil {
				return err
			}
			return mi.Write(os.Stdout)
		},
		"metainfo": func() error {
			return runMap(map[string]func() error{
				"validate-v2": func() error {
					return validateV2(parseFileName())
				},
				"pprint": func() error {
					return pprint(parseFileName())
				},
				"magnet": func() error {
					mi, info, err := loadInfo(parseFileName())
					if err != nil {
						return err
					}
					fmt.Println(mi.Magnet(&info).String())
					return nil
				},
			})
		},
		"merkle": func() error {
			h := merkle.NewHash()
			n, err := io.Copy(h, os.Stdin)
			log.Levelf(log.Debug, "copied %v bytes", n)
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", h.Sum(nil))
			return nil
		},
	})
	if err != nil {
		return err
	}
	p.FailIfArgsRemain()
	return p.Err()
}

// Parses the arguments to create. ok is false if parsing failed, in which case the parser holds
// the error.
func parseCreate(p *bargle.Parser) (opts create.Options, root string, ok bool) {
	var (
		pieceLength g.Option[string]
		version     g.Option[string]
		tracker     g.Option[string]
		webSeed     g.Option[string]
		comment     g.Option[string]
	)
	bargle.ParseAll(
		p,
		bargle.Positional("root", bargle.BuiltinUnmarshaler(&root)),
		bargle.Long("piece-length", bargle.BuiltinOptionUnmarshaler(&pieceLength)),
		bargle.Long("version", bargle.BuiltinOptionUnmarshaler(&version)),
		bargle.Long("tracker", bargle.BuiltinOptionUnmarshaler(&tracker)),
		bargle.Long("web-seed", bargle.BuiltinOptionUnmarshaler(&webSeed)),
		bargle.Long("comment", bargle.BuiltinOptionUnmarshaler(&comment)),
	)
	p.FailIfArgsRemain()
	if !p.Ok() {
		return
	}
	if root == "" {
		p.SetError(errors.New("root not specified"))
		return
	}
	if pieceLength.Ok {
		n, err := humanize.ParseBytes(pieceLength.Value)
		if err != nil {
			p.SetError(fmt.Errorf("parsing piece length: %w", err))
			return
		}
		opts.PieceLength = int64(n)
	}
	if version.Ok {
		var err error
		opts.Version, err = create.ParseVersion(version.Value)
		if err != nil {
			p.SetError(err)
			return
		}
	}
	if tracker.Ok {
		opts.Trackers = [][]string{{tracker.Value}}
	}
	if webSeed.Ok {
		opts.WebSeeds = []string{webSeed.Value}
	}
	opts.Comment = comment.UnwrapOr("")
	ok = true
	return
}

func loadInfo(filename string) (mi *metainfo.MetaInfo, info metainfo.Info, err error) {
	mi, err = metainfo.LoadFromFile(filename)
	if err != nil {
		return
	}
	info, err = mi.UnmarshalInfo()
	return
}

func validateV2(filename string) error {
	mi, info, err := loadInfo(filename)
	if err != nil {
		return err
	}
	if !info.HasV2() {
		return errors.New("not a v2 torrent")
	}
	if err = info.Validate(); err != nil {
		return err
	}
	ph, err := piecehash.FromInfo(&info, mi.PieceLayers)
	if err != nil {
		return err
	}
	log.Levelf(log.Info, "%v pieces verified against their file roots", ph.Count())
	return nil
}

func pprint(filename string) error {
	_, info, err := loadInfo(filename)
	if err != nil {
		return err
	}
	fmt.Printf("name: %q\n", info.Name)
	fmt.Printf("piece length: %s\n", humanize.IBytes(uint64(info.PieceLength)))
	fmt.Printf("total length: %s\n", humanize.IBytes(uint64(info.TotalLength())))
	fmt.Printf("# files:\n")
	for tf := range info.TorrentFiles() {
		hash := "no v2 pieces root"
		if tf.PiecesRoot.Ok {
			hash = fmt.Sprintf("%x", tf.PiecesRoot.Value)
		}
		path := "(single file torrent)"
		if info.IsDir() {
			path = fmt.Sprintf("%q", strings.Join(tf.Path, "/"))
		}
		fmt.Printf(
			"%s: %v: %s: pieces (%v-%v)\n",
			hash,
			path,
			humanize.IBytes(uint64(tf.Length)),
			tf.StartPieceIndex,
			tf.EndPieceIndex,
		)
	}
	return nil
}
