package piecelayers

import (
	"bytes"
	"time"

	g "github.com/anacrolix/generics"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/piecetree/piecetree/merkle"
	"github.com/piecetree/piecetree/piecehash"
)

var bucketName = []byte("piece layers")

// Persists verified piece layers keyed by pieces root and piece layer index. Nothing read back is
// trusted: it's verified against its root again.
type Store struct {
	db *bbolt.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating bucket")
	}
	return &Store{db}, nil
}

func (me *Store) Close() error {
	return me.db.Close()
}

func storeKey(root [merkle.HashSize]byte, pieceLayer int) []byte {
	return append(root[:], byte(pieceLayer))
}

func (me *Store) Put(tree *merkle.ReadOnlyLayers) error {
	return me.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(storeKey(tree.Root(), tree.PieceLayer()), tree.PieceLayerBytes())
	})
}

// Returns the verified tree for root, if one was stored for the piece length. A stored piece layer
// that doesn't verify is an error.
func (me *Store) Get(root [merkle.HashSize]byte, pieceLength int64) (ret g.Option[*merkle.ReadOnlyLayers], err error) {
	pieceLayer, err := merkle.PieceLayerIndex(pieceLength)
	if err != nil {
		return
	}
	var layer []byte
	err = me.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid for the life of the transaction.
		layer = bytes.Clone(tx.Bucket(bucketName).Get(storeKey(root, pieceLayer)))
		return nil
	})
	if err != nil || layer == nil {
		return
	}
	tree, err := piecehash.VerifyPieceLayer(root, pieceLength, layer)
	if err != nil {
		err = errors.Wrapf(err, "stored piece layer for %x", root)
		return
	}
	ret.Set(tree)
	return
}

func (me *Store) Delete(root [merkle.HashSize]byte, pieceLength int64) error {
	pieceLayer, err := merkle.PieceLayerIndex(pieceLength)
	if err != nil {
		return err
	}
	return me.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(storeKey(root, pieceLayer))
	})
}
