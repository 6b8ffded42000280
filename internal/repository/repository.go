package repository

import (
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
)

// Repository is a piece completion store the transfer engine can hand to its
// storage layer, plus the bookkeeping a session needs around it.
type Repository interface {
	storage.PieceCompletion
	Completed(infoHash metainfo.Hash) ([]int, error)
	Forget(infoHash metainfo.Hash) error
}
