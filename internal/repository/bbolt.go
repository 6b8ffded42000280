package repository

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"go.etcd.io/bbolt"
)

const (
	completionBucket = "completion"
	metadataBucket   = "metadata"
	schemaVersion    = 1
)

// BboltRepository records which pieces have passed verification so a
// restarted session does not hash data it already checked.
type BboltRepository struct {
	db *bbolt.DB
}

var _ storage.PieceCompletion = (*BboltRepository)(nil)

// NewBboltRepository opens (creating if needed) the database at dbPath.
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(completionBucket))
		if err != nil {
			return fmt.Errorf("failed to create completion bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

func pieceKey(index int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(index))

	return b[:]
}

// Get reports the stored completion state of a piece. Unknown pieces are
// returned with Ok false so the engine hashes them.
func (r *BboltRepository) Get(pk metainfo.PieceKey) (storage.Completion, error) {
	var c storage.Completion

	err := r.db.View(func(tx *bbolt.Tx) error {
		torrents := tx.Bucket([]byte(completionBucket))
		if torrents == nil {
			return fmt.Errorf("bucket not found: %s", completionBucket)
		}

		pieces := torrents.Bucket(pk.InfoHash[:])
		if pieces == nil {
			return nil
		}

		v := pieces.Get(pieceKey(pk.Index))
		if v == nil {
			return nil
		}

		c.Ok = true
		c.Complete = len(v) == 1 && v[0] == 1

		return nil
	})

	return c, err
}

// Set persists the completion state of a piece.
func (r *BboltRepository) Set(pk metainfo.PieceKey, complete bool) error {
	value := []byte{0}
	if complete {
		value[0] = 1
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		torrents := tx.Bucket([]byte(completionBucket))
		if torrents == nil {
			return fmt.Errorf("bucket not found: %s", completionBucket)
		}

		pieces, err := torrents.CreateBucketIfNotExists(pk.InfoHash[:])
		if err != nil {
			return fmt.Errorf("failed to create torrent bucket: %w", err)
		}

		return pieces.Put(pieceKey(pk.Index), value)
	})
}

// Completed returns the indices stored as complete for a torrent, ascending.
func (r *BboltRepository) Completed(infoHash metainfo.Hash) ([]int, error) {
	var out []int

	err := r.db.View(func(tx *bbolt.Tx) error {
		torrents := tx.Bucket([]byte(completionBucket))
		if torrents == nil {
			return fmt.Errorf("bucket not found: %s", completionBucket)
		}

		pieces := torrents.Bucket(infoHash[:])
		if pieces == nil {
			return nil
		}

		return pieces.ForEach(func(k, v []byte) error {
			if len(k) == 4 && len(v) == 1 && v[0] == 1 {
				out = append(out, int(binary.BigEndian.Uint32(k)))
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Forget drops everything recorded for a torrent.
func (r *BboltRepository) Forget(infoHash metainfo.Hash) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		torrents := tx.Bucket([]byte(completionBucket))
		if torrents == nil {
			return fmt.Errorf("bucket not found: %s", completionBucket)
		}

		err := torrents.DeleteBucket(infoHash[:])
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}

		return err
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
