// Package piecelayers requests, serves and verifies BitTorrent v2 piece layer hashes for torrents
// whose metainfo doesn't include them, such as those started from a magnet link.
package piecelayers

import (
	"errors"
	"fmt"

	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/piecehash"
)

var (
	ErrUnknownRoot = errors.New("unknown pieces root")
	// The hashes didn't prove against the pieces root. The sender should be penalized.
	ErrRejected = errors.New("hashes rejected")
)

// The fields of a BEP 52 hash request.
type Request struct {
	PiecesRoot  [merkle.HashSize]byte
	BaseLayer   int
	Index       int
	Length      int
	ProofLayers int
}

func (r Request) String() string {
	return fmt.Sprintf(
		"hash request for %x layer %d [%d, %d) with %d proofs",
		r.PiecesRoot[:8], r.BaseLayer, r.Index, r.Index+r.Length, r.ProofLayers)
}

// The reply to a Request. Either a BEP 52 hashes message, or a hash reject.
type Response struct {
	Request
	Reject bool
	Hashes []byte
	// Uncle hashes, ascending from the subtree containing Hashes.
	Proofs []byte
}

// Answers a peer's hash request from verified piece hashes. Requests that can't be served get a
// reject.
func Serve(hashes *piecehash.V2, req Request) (Response, bool) {
	h, p, ok := hashes.TryGetV2Hashes(req.PiecesRoot, req.BaseLayer, req.Index, req.Length, req.ProofLayers)
	if !ok {
		hashRequestsRejected.Inc()
		return Response{Request: req, Reject: true}, false
	}
	hashesServed.Add(float64(req.Length))
	return Response{
		Request: req,
		Hashes:  h,
		Proofs:  p,
	}, true
}

// The number of uncle hashes needed to prove length hashes at index on baseLayer up to finalLayer.
func proofLayers(baseLayer, length, finalLayer int) int {
	return finalLayer - baseLayer - int(merkle.Log2RoundingUp(uint(max(2, length))))
}
