// Package metainfotest builds decoded torrent descriptors for tests.
package metainfotest

import (
	"bytes"
	"crypto/sha1"
	"strconv"
	"strings"
	"testing"

	"github.com/NamanBalaji/tfetch/pkg/torrent/bencode"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

// File describes one file of a test torrent. Path segments are separated by '/'.
type File struct {
	Path   string
	Length int64
}

// Encode returns a bencoded multi-file descriptor. Piece hashes are derived
// from the piece index so every piece has a distinct digest.
func Encode(tb testing.TB, name string, pieceLength int64, files ...File) []byte {
	tb.Helper()

	var total int64
	for _, f := range files {
		total += f.Length
	}

	return encode(tb, name, pieceLength, files, Hashes(int((total+pieceLength-1)/pieceLength)))
}

// Content is a test file together with its bytes.
type Content struct {
	Path string
	Data []byte
}

// EncodeContent returns a bencoded multi-file descriptor whose piece hashes
// match the concatenated file contents, so the torrent can be verified
// against data on disk.
func EncodeContent(tb testing.TB, name string, pieceLength int64, contents ...Content) []byte {
	tb.Helper()

	var (
		all   []byte
		files = make([]File, 0, len(contents))
	)

	for _, c := range contents {
		all = append(all, c.Data...)
		files = append(files, File{Path: c.Path, Length: int64(len(c.Data))})
	}

	var pieces bytes.Buffer

	for start := int64(0); start < int64(len(all)); start += pieceLength {
		sum := sha1.Sum(all[start:min(start+pieceLength, int64(len(all)))])
		pieces.Write(sum[:])
	}

	return encode(tb, name, pieceLength, files, pieces.Bytes())
}

func encode(tb testing.TB, name string, pieceLength int64, files []File, pieces []byte) []byte {
	tb.Helper()

	list := make([]any, 0, len(files))
	for _, f := range files {
		list = append(list, map[string]any{
			"length": f.Length,
			"path":   strings.Split(f.Path, "/"),
		})
	}

	data, err := bencode.Marshal(map[string]any{
		"announce": "http://tracker.invalid/announce",
		"info": map[string]any{
			"name":         name,
			"piece length": pieceLength,
			"pieces":       pieces,
			"files":        list,
		},
	})
	if err != nil {
		tb.Fatalf("encoding test torrent: %v", err)
	}

	return data
}

// EncodeSingle returns a bencoded single-file descriptor.
func EncodeSingle(tb testing.TB, name string, pieceLength, length int64) []byte {
	tb.Helper()

	data, err := bencode.Marshal(map[string]any{
		"info": map[string]any{
			"name":         name,
			"piece length": pieceLength,
			"pieces":       Hashes(int((length + pieceLength - 1) / pieceLength)),
			"length":       length,
		},
	})
	if err != nil {
		tb.Fatalf("encoding test torrent: %v", err)
	}

	return data
}

// New decodes a multi-file descriptor built by Encode.
func New(tb testing.TB, name string, pieceLength int64, files ...File) *metainfo.Metadata {
	tb.Helper()

	md, err := metainfo.Decode(Encode(tb, name, pieceLength, files...))
	if err != nil {
		tb.Fatalf("decoding test torrent: %v", err)
	}

	return md
}

// NewSingle decodes a single-file descriptor built by EncodeSingle.
func NewSingle(tb testing.TB, name string, pieceLength, length int64) *metainfo.Metadata {
	tb.Helper()

	md, err := metainfo.Decode(EncodeSingle(tb, name, pieceLength, length))
	if err != nil {
		tb.Fatalf("decoding test torrent: %v", err)
	}

	return md
}

// Hashes returns n concatenated piece digests.
func Hashes(n int) []byte {
	var buf bytes.Buffer

	for i := range n {
		sum := sha1.Sum([]byte("piece-" + strconv.Itoa(i)))
		buf.Write(sum[:])
	}

	return buf.Bytes()
}
