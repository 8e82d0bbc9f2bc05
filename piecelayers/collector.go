package piecelayers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/pkg/errors"

	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/metainfo"
	"github.com/piecetree/piecetree/piecehash"
)

type CollectorOpts struct {
	// Defaults to log.Default named for the package.
	Logger *log.Logger
	// Verified trees are loaded from and saved to Store if set.
	Store *Store
}

// Collects the piece layers of a v2 torrent's files from peers. Files are independent, and each has
// its own lock, so hashes for different files can be handled concurrently.
type Collector struct {
	pieceLength int64
	pieceLayer  int
	files       []metainfo.TorrentFile
	// Files that need piece layers, by pieces root. Files with identical contents share a state.
	states map[[merkle.HashSize]byte]*fileState
	// The keys of states in file order.
	roots  [][merkle.HashSize]byte
	logger log.Logger
	store  *Store
}

type fileState struct {
	mu   sync.Mutex
	path string
	// Hashes on the piece layer.
	numPieces int
	// Nil once verified.
	layers *merkle.Layers
	// Piece layer indices that have been proven.
	have     *roaring.Bitmap
	verified *merkle.ReadOnlyLayers
}

func NewCollector(info *metainfo.Info, opts CollectorOpts) (*Collector, error) {
	if !info.HasV2() {
		return nil, errors.New("info has no v2 fields")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	pieceLayer, err := merkle.PieceLayerIndex(info.PieceLength)
	if err != nil {
		return nil, err
	}
	me := &Collector{
		pieceLength: info.PieceLength,
		pieceLayer:  pieceLayer,
		store:       opts.Store,
	}
	if opts.Logger != nil {
		me.logger = *opts.Logger
	} else {
		me.logger = log.Default.WithNames("piecelayers")
	}
	g.MakeMap(&me.states)
	for tf := range info.TorrentFiles() {
		me.files = append(me.files, tf)
		if tf.Length <= me.pieceLength || !tf.PiecesRoot.Ok {
			continue
		}
		root := tf.PiecesRoot.Value
		if g.MapContains(me.states, root) {
			continue
		}
		s, err := me.newFileState(tf)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", strings.Join(tf.Path, "/"), err)
		}
		me.states[root] = s
		me.roots = append(me.roots, root)
	}
	return me, nil
}

func (me *Collector) newFileState(tf metainfo.TorrentFile) (*fileState, error) {
	root := tf.PiecesRoot.Value
	s := &fileState{
		path:      strings.Join(tf.Path, "/"),
		numPieces: tf.NumPieces(),
		have:      roaring.New(),
	}
	if me.store != nil {
		tree, err := me.store.Get(root, me.pieceLength)
		if err != nil {
			me.logger.Levelf(log.Warning, "ignoring stored piece layers for %q: %v", s.path, err)
		} else if tree.Ok && tree.Value.HashCount(me.pieceLayer) == s.numPieces {
			me.logger.Levelf(log.Debug, "loaded verified piece layers for %q", s.path)
			s.verified = tree.Value
			return s, nil
		}
	}
	var err error
	s.layers, err = merkle.NewLayers(g.Some(root), me.pieceLength, s.numPieces)
	return s, err
}

// Returns up to limit requests for piece layer hashes not yet received, in file order.
func (me *Collector) NextRequests(limit int) (reqs []Request) {
	for _, root := range me.roots {
		if len(reqs) >= limit {
			break
		}
		s := me.states[root]
		s.mu.Lock()
		reqs = s.appendRequests(reqs, limit, root, me.pieceLayer)
		s.mu.Unlock()
	}
	return
}

func (s *fileState) appendRequests(reqs []Request, limit int, root [merkle.HashSize]byte, pieceLayer int) []Request {
	if s.verified != nil {
		return reqs
	}
	finalLayer := s.layers.FinalLayer()
	for index := 0; index < s.numPieces && len(reqs) < limit; index += piecehash.MaxHashesPerRequest {
		length := min(piecehash.MaxHashesPerRequest, s.numPieces-index)
		chunk := roaring.New()
		chunk.AddRange(uint64(index), uint64(index+length))
		if chunk.AndCardinality(s.have) == uint64(length) {
			continue
		}
		reqs = append(reqs, Request{
			PiecesRoot:  root,
			BaseLayer:   pieceLayer,
			Index:       index,
			Length:      length,
			ProofLayers: proofLayers(pieceLayer, length, finalLayer),
		})
	}
	return reqs
}

// Handles a peer's reply to a hash request. Returns ErrRejected if the hashes don't prove against
// the file's root, in which case nothing is stored.
func (me *Collector) OnHashes(resp Response) error {
	s, ok := me.states[resp.PiecesRoot]
	if !ok {
		return fmt.Errorf("%w: %x", ErrUnknownRoot, resp.PiecesRoot)
	}
	if resp.Reject {
		hashRejectsReceived.Inc()
		me.logger.Levelf(log.Debug, "peer rejected %v", resp.Request)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified != nil {
		return nil
	}
	if resp.BaseLayer != me.pieceLayer ||
		!s.layers.TryAppend(resp.BaseLayer, resp.Index, resp.Length, resp.Hashes, resp.Proofs) {
		hashesRejected.Inc()
		return fmt.Errorf("%w: %v for %q", ErrRejected, resp.Request, s.path)
	}
	end := min(resp.Index+resp.Length, s.numPieces)
	if end > resp.Index {
		s.have.AddRange(uint64(resp.Index), uint64(end))
		hashesAccepted.Add(float64(end - resp.Index))
	}
	if s.have.GetCardinality() < uint64(s.numPieces) {
		return nil
	}
	return me.verify(s)
}

func (me *Collector) verify(s *fileState) error {
	tree, ok := s.layers.TryVerify()
	if !ok {
		// Every append proved against the root, so the layer as a whole must too.
		panic(fmt.Sprintf("piece layer for %q failed verification", s.path))
	}
	s.verified = tree
	s.layers = nil
	filesVerified.Inc()
	me.logger.Levelf(log.Debug, "verified piece layers for %q", s.path)
	if me.store == nil {
		return nil
	}
	return errors.Wrapf(me.store.Put(tree), "storing piece layers for %q", s.path)
}

// Whether every file's piece layer has been verified.
func (me *Collector) Complete() bool {
	for _, s := range me.states {
		s.mu.Lock()
		verified := s.verified != nil
		s.mu.Unlock()
		if !verified {
			return false
		}
	}
	return true
}

// Returns the torrent's piece hashes once every piece layer is verified.
func (me *Collector) PieceHashes() (*piecehash.V2, error) {
	trees := make(map[[merkle.HashSize]byte]*merkle.ReadOnlyLayers, len(me.states))
	for root, s := range me.states {
		s.mu.Lock()
		tree := s.verified
		s.mu.Unlock()
		if tree == nil {
			return nil, fmt.Errorf("piece layers for %q are incomplete", s.path)
		}
		trees[root] = tree
	}
	return piecehash.NewV2(me.pieceLength, me.files, trees)
}

// The piece layers dict for the torrent's metainfo, for files verified so far.
func (me *Collector) PieceLayers() map[string]string {
	ret := make(map[string]string, len(me.states))
	for root, s := range me.states {
		s.mu.Lock()
		if s.verified != nil {
			ret[string(root[:])] = string(s.verified.PieceLayerBytes())
		}
		s.mu.Unlock()
	}
	return ret
}
