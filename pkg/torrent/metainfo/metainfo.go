// Package metainfo decodes BitTorrent metainfo (.torrent) descriptors into
// an immutable Metadata model: file list with derived offsets, piece grid
// and the info hash peers use to identify the swarm.
package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/NamanBalaji/tfetch/pkg/torrent/bencode"
)

// HashSize is the size of a SHA-1 digest: info hash and piece hashes.
const HashSize = sha1.Size

// Hash is a 20 byte SHA-1 digest.
type Hash [HashSize]byte

// HexString returns the lowercase hex encoding of h.
func (h Hash) HexString() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.HexString()
}

// FileEntry is one file of the torrent, positioned in the concatenated
// byte space of all files.
type FileEntry struct {
	Path   []string
	Length int64
	Offset int64
}

// DisplayPath returns the path segments joined with '/'.
func (f FileEntry) DisplayPath() string {
	return strings.Join(f.Path, "/")
}

// End returns the exclusive end offset of the file.
func (f FileEntry) End() int64 {
	return f.Offset + f.Length
}

// Metadata is the decoded torrent descriptor. It is never mutated after Decode returns.
type Metadata struct {
	InfoHash     Hash
	Name         string
	PieceLength  int64
	PieceHashes  []Hash
	Files        []FileEntry
	MultiFile    bool
	Private      bool
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate time.Time

	// InfoBytes is the exact encoding of the info dictionary the hash was computed over.
	InfoBytes []byte
	// Raw is the complete descriptor as it was decoded.
	Raw []byte

	totalLength int64
}

// TotalLength returns the sum of all file lengths.
func (m *Metadata) TotalLength() int64 {
	return m.totalLength
}

// NumPieces returns the number of pieces in the torrent.
func (m *Metadata) NumPieces() int {
	return len(m.PieceHashes)
}

// PieceOffset returns the global byte offset of piece i.
func (m *Metadata) PieceOffset(i int) int64 {
	return int64(i) * m.PieceLength
}

// PieceSize returns the length of piece i. Only the last piece may be shorter
// than PieceLength. Out of range indices have size 0.
func (m *Metadata) PieceSize(i int) int64 {
	if i < 0 || i >= len(m.PieceHashes) {
		return 0
	}

	if i == len(m.PieceHashes)-1 {
		return m.totalLength - m.PieceOffset(i)
	}

	return m.PieceLength
}

// HexHash returns the info hash as lowercase hex.
func (m *Metadata) HexHash() string {
	return m.InfoHash.HexString()
}

type rawMetainfo struct {
	Info bencode.RawMessage `bencode:"info"`
}

type rawInfo struct {
	Name        string     `bencode:"name"`
	PieceLength *int64     `bencode:"piece length"`
	Pieces      *[]byte    `bencode:"pieces"`
	Length      *int64     `bencode:"length"`
	Files       *[]rawFile `bencode:"files"`
	Private     int64      `bencode:"private"`
}

type rawFile struct {
	Length *int64   `bencode:"length"`
	Path   []string `bencode:"path"`
}

// Load reads a complete descriptor from r and decodes it.
func Load(r io.Reader) (*Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading metainfo: %w", err)
	}

	return Decode(data)
}

// Decode parses a bencoded torrent descriptor. Every failure wraps
// ErrMalformedMetadata.
func Decode(data []byte) (*Metadata, error) {
	if len(data) == 0 {
		return nil, newValidationError(ErrInvalidTorrentStructure, "", "empty torrent data")
	}

	var top rawMetainfo
	if err := bencode.Unmarshal(data, &top); err != nil {
		verr := newValidationError(ErrInvalidTorrentStructure, "", "torrent must be a well-formed bencoded dictionary")
		verr.Err = err

		return nil, verr
	}

	if len(top.Info) == 0 {
		return nil, newValidationError(ErrInvalidInfoDict, "info", "missing required info field")
	}

	var info rawInfo
	if err := bencode.Unmarshal(top.Info, &info); err != nil {
		verr := newValidationError(ErrInvalidInfoDict, "info", "info must be a dictionary with well-typed fields")
		verr.Err = err

		return nil, verr
	}

	md := &Metadata{
		Name:      info.Name,
		Private:   info.Private == 1,
		InfoBytes: []byte(top.Info),
		Raw:       data,
		InfoHash:  sha1.Sum(top.Info),
	}

	if err := md.setPieces(&info); err != nil {
		return nil, err
	}

	if err := md.setFiles(&info); err != nil {
		return nil, err
	}

	if err := md.validate(); err != nil {
		return nil, err
	}

	// The top level already decoded once, so the generic pass cannot fail.
	if generic, _, err := bencode.Decode(data); err == nil {
		if dict, ok := generic.(map[string]any); ok {
			md.setOptional(dict)
		}
	}

	return md, nil
}

func (m *Metadata) setPieces(info *rawInfo) error {
	if info.PieceLength == nil {
		return newValidationError(ErrInvalidPieceLength, "piece length", "missing required field")
	}

	if *info.PieceLength <= 0 {
		return newValidationError(ErrInvalidPieceLength, "piece length", fmt.Sprintf("must be positive, got %d", *info.PieceLength))
	}

	if info.Pieces == nil {
		return newValidationError(ErrInvalidPieces, "pieces", "missing required field")
	}

	pieces := *info.Pieces
	if len(pieces)%HashSize != 0 {
		return newValidationError(ErrInvalidPieces, "pieces", fmt.Sprintf("length %d not a multiple of %d", len(pieces), HashSize))
	}

	m.PieceLength = *info.PieceLength
	m.PieceHashes = make([]Hash, len(pieces)/HashSize)

	for i := range m.PieceHashes {
		copy(m.PieceHashes[i][:], pieces[i*HashSize:])
	}

	return nil
}

func (m *Metadata) setFiles(info *rawInfo) error {
	switch {
	case info.Length == nil && info.Files == nil:
		return newValidationError(ErrInvalidFileStructure, "info", "one of length or files is required")
	case info.Length != nil && info.Files != nil:
		return newValidationError(ErrInvalidFileStructure, "info", "length and files are mutually exclusive")
	case info.Length != nil:
		if *info.Length < 0 {
			return newValidationError(ErrInvalidFileStructure, "length", "negative length")
		}

		name := m.Name
		if name == "" {
			name = m.HexHash()
		}

		if err := checkPathSegment(name); err != nil {
			return newValidationError(ErrInvalidFilePath, "name", err.Error())
		}

		m.Files = []FileEntry{{Path: []string{name}, Length: *info.Length}}
		m.totalLength = *info.Length

		return nil
	}

	files := *info.Files
	if len(files) == 0 {
		return newValidationError(ErrInvalidFileStructure, "files", "empty file list")
	}

	m.MultiFile = true
	m.Files = make([]FileEntry, 0, len(files))

	var offset int64

	for i, f := range files {
		field := fmt.Sprintf("files[%d]", i)

		if f.Length == nil || *f.Length < 0 {
			return newValidationError(ErrInvalidFileStructure, field, "missing or negative length")
		}

		if *f.Length > math.MaxInt64-offset {
			return newValidationError(ErrInconsistentData, field, "total length overflows")
		}

		if len(f.Path) == 0 {
			return newValidationError(ErrInvalidFilePath, field, "empty path")
		}

		for _, seg := range f.Path {
			if err := checkPathSegment(seg); err != nil {
				return newValidationError(ErrInvalidFilePath, field, err.Error())
			}
		}

		m.Files = append(m.Files, FileEntry{
			Path:   f.Path,
			Length: *f.Length,
			Offset: offset,
		})
		offset += *f.Length
	}

	m.totalLength = offset

	return nil
}

// checkPathSegment rejects segments that would escape the output directory.
func checkPathSegment(seg string) error {
	switch {
	case seg == "":
		return fmt.Errorf("empty path segment")
	case seg == "." || seg == "..":
		return fmt.Errorf("path segment %q not allowed", seg)
	case strings.ContainsAny(seg, "/\\\x00"):
		return fmt.Errorf("path segment %q contains a separator", seg)
	}

	return nil
}

// validate checks the piece grid against the file layout.
func (m *Metadata) validate() error {
	want := m.totalLength / m.PieceLength
	if m.totalLength%m.PieceLength != 0 {
		want++
	}

	if int64(len(m.PieceHashes)) != want {
		return newValidationError(ErrInconsistentData, "pieces",
			fmt.Sprintf("%d piece hashes for %d bytes at piece length %d, want %d",
				len(m.PieceHashes), m.totalLength, m.PieceLength, want))
	}

	return nil
}

// setOptional fills descriptive fields. Malformed optional fields are ignored.
func (m *Metadata) setOptional(dict map[string]any) {
	if s, err := bytesToString(dict["announce"]); err == nil {
		m.Announce = s
	}

	if v, ok := dict["announce-list"]; ok {
		m.AnnounceList = parseAnnounceList(v)
	}

	if s, err := bytesToString(dict["comment"]); err == nil {
		m.Comment = s
	}

	if s, err := bytesToString(dict["created by"]); err == nil {
		m.CreatedBy = s
	}

	if n, ok := dict["creation date"].(int64); ok && n > 0 {
		m.CreationDate = time.Unix(n, 0).UTC()
	}
}

// bytesToString safely converts []byte or string to string.
func bytesToString(value any) (string, error) {
	switch v := value.(type) {
	case []byte:
		return string(v), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected string or []byte, got %T", value)
	}
}

// parseAnnounceList keeps every well-formed tier and drops the rest.
func parseAnnounceList(value any) [][]string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}

	announceList := make([][]string, 0, len(list))

	for _, tierVal := range list {
		tierList, ok := tierVal.([]any)
		if !ok {
			continue
		}

		tier := make([]string, 0, len(tierList))
		for _, urlVal := range tierList {
			if urlStr, err := bytesToString(urlVal); err == nil {
				tier = append(tier, urlStr)
			}
		}

		if len(tier) > 0 {
			announceList = append(announceList, tier)
		}
	}

	return announceList
}
