package ledger

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid piece transition")
	ErrUnplannedPiece    = errors.New("piece not in plan")
)

// PieceStatus is the lifecycle state of a planned piece.
type PieceStatus int

const (
	Missing PieceStatus = iota
	Requested
	Verified
)

func (s PieceStatus) String() string {
	switch s {
	case Missing:
		return "missing"
	case Requested:
		return "requested"
	case Verified:
		return "verified"
	default:
		return "unknown"
	}
}

// EventKind identifies a piece lifecycle event reported by the transfer engine.
type EventKind int

const (
	PieceRequested EventKind = iota + 1
	PieceVerified
	PieceFailed
)

func (k EventKind) String() string {
	switch k {
	case PieceRequested:
		return "requested"
	case PieceVerified:
		return "verified"
	case PieceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a single piece lifecycle notification.
type Event struct {
	Kind  EventKind
	Index int
	// Err carries the engine's reason for a PieceFailed event.
	Err error
}

// Snapshot is a point-in-time view of download progress over the selection.
type Snapshot struct {
	BytesVerified  int64
	BytesTotal     int64
	PiecesVerified int
	PiecesTotal    int
	RatePerSecond  float64
	Failures       int
	Taken          time.Time
}

// Complete reports whether every planned piece was verified.
func (s Snapshot) Complete() bool {
	return s.PiecesVerified == s.PiecesTotal
}

// Percentage returns verified selection bytes as a percentage in [0, 100].
func (s Snapshot) Percentage() float64 {
	if s.BytesTotal <= 0 {
		if s.Complete() {
			return 100
		}

		return 0
	}

	return float64(s.BytesVerified) / float64(s.BytesTotal) * 100
}

// ETA estimates the time left at the current rate. It is zero when the
// rate is unknown or nothing remains.
func (s Snapshot) ETA() time.Duration {
	remaining := s.BytesTotal - s.BytesVerified
	if s.RatePerSecond <= 0 || remaining <= 0 {
		return 0
	}

	return time.Duration(float64(remaining) / s.RatePerSecond * float64(time.Second))
}
