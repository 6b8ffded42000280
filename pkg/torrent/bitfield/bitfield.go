// Package bitfield implements the piece bitset used to record which pieces
// of a torrent are present, planned or seen.
package bitfield

import (
	"fmt"
	"math/bits"
	"sync"
)

// Bitfield is a fixed-length, concurrency-safe set of piece indices.
// Bits are stored most significant first, as on the BitTorrent wire.
type Bitfield struct {
	bits []byte
	len  int
	mu   sync.RWMutex
}

// New creates an empty bitfield for numPieces pieces.
func New(numPieces int) *Bitfield {
	if numPieces < 0 {
		numPieces = 0
	}

	return &Bitfield{
		bits: make([]byte, (numPieces+7)/8),
		len:  numPieces,
	}
}

// FromBytes creates a bitfield from raw bytes.
func FromBytes(data []byte, numPieces int) (*Bitfield, error) {
	expectedBytes := (numPieces + 7) / 8
	if len(data) != expectedBytes {
		return nil, fmt.Errorf("invalid bitfield length: got %d bytes, expected %d", len(data), expectedBytes)
	}

	if spare := expectedBytes*8 - numPieces; spare > 0 && data[expectedBytes-1]&(1<<spare-1) != 0 {
		return nil, fmt.Errorf("spare bits set past piece %d", numPieces-1)
	}

	bf := &Bitfield{
		bits: make([]byte, len(data)),
		len:  numPieces,
	}
	copy(bf.bits, data)

	return bf, nil
}

// Len returns the number of pieces the bitfield covers.
func (bf *Bitfield) Len() int {
	return bf.len
}

// SetPiece marks a piece as present.
func (bf *Bitfield) SetPiece(index int) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if index < 0 || index >= bf.len {
		return fmt.Errorf("piece index %d out of range [0, %d)", index, bf.len)
	}

	bf.bits[index/8] |= 1 << (7 - uint(index%8))

	return nil
}

// ClearPiece marks a piece as absent.
func (bf *Bitfield) ClearPiece(index int) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if index < 0 || index >= bf.len {
		return fmt.Errorf("piece index %d out of range [0, %d)", index, bf.len)
	}

	bf.bits[index/8] &^= 1 << (7 - uint(index%8))

	return nil
}

// HasPiece reports whether a piece is present. Out of range indices are never present.
func (bf *Bitfield) HasPiece(index int) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	return bf.has(index)
}

func (bf *Bitfield) has(index int) bool {
	if index < 0 || index >= bf.len {
		return false
	}

	return bf.bits[index/8]&(1<<(7-uint(index%8))) != 0
}

// Bytes returns a copy of the raw bitfield bytes.
func (bf *Bitfield) Bytes() []byte {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	result := make([]byte, len(bf.bits))
	copy(result, bf.bits)

	return result
}

// Count returns the number of pieces marked present.
func (bf *Bitfield) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	count := 0
	for _, b := range bf.bits {
		count += bits.OnesCount8(b)
	}

	return count
}

// IsComplete returns true if all pieces are present.
func (bf *Bitfield) IsComplete() bool {
	return bf.Count() == bf.len
}
