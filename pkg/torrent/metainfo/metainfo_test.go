package metainfo_test

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tfetch/pkg/torrent/bencode"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo"
)

func pieceHashes(n int) []byte {
	out := make([]byte, 0, n*metainfo.HashSize)
	for i := range n {
		out = append(out, bytes.Repeat([]byte{byte(i + 1)}, metainfo.HashSize)...)
	}

	return out
}

func encodeTorrent(t *testing.T, info map[string]any) []byte {
	t.Helper()

	data, err := bencode.Marshal(map[string]any{
		"announce":      "http://tracker.example.com/announce",
		"announce-list": [][]string{{"http://a/announce"}, {"http://b/announce", "udp://c:80"}},
		"comment":       "test torrent",
		"created by":    "test-suite",
		"creation date": 1234567890,
		"info":          info,
	})
	require.NoError(t, err)

	return data
}

func multiFileInfo() map[string]any {
	return map[string]any{
		"name":         "bundle",
		"piece length": 16384,
		"pieces":       pieceHashes(3),
		"files": []any{
			map[string]any{"length": 25000, "path": []string{"docs", "a.pdf"}},
			map[string]any{"length": 15000, "path": []string{"b.epub"}},
		},
	}
}

func TestDecodeMultiFile(t *testing.T) {
	data := encodeTorrent(t, multiFileInfo())

	md, err := metainfo.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "bundle", md.Name)
	assert.True(t, md.MultiFile)
	assert.Equal(t, int64(16384), md.PieceLength)
	assert.Equal(t, 3, md.NumPieces())
	assert.Equal(t, int64(40000), md.TotalLength())
	assert.Equal(t, "http://tracker.example.com/announce", md.Announce)
	assert.Equal(t, [][]string{{"http://a/announce"}, {"http://b/announce", "udp://c:80"}}, md.AnnounceList)
	assert.Equal(t, "test torrent", md.Comment)
	assert.Equal(t, "test-suite", md.CreatedBy)
	assert.Equal(t, int64(1234567890), md.CreationDate.Unix())

	require.Len(t, md.Files, 2)
	assert.Equal(t, metainfo.FileEntry{Path: []string{"docs", "a.pdf"}, Length: 25000, Offset: 0}, md.Files[0])
	assert.Equal(t, metainfo.FileEntry{Path: []string{"b.epub"}, Length: 15000, Offset: 25000}, md.Files[1])
	assert.Equal(t, "docs/a.pdf", md.Files[0].DisplayPath())
	assert.Equal(t, int64(40000), md.Files[1].End())

	assert.Equal(t, int64(16384), md.PieceSize(0))
	assert.Equal(t, int64(40000-2*16384), md.PieceSize(2))
	assert.Equal(t, int64(0), md.PieceSize(3))
	assert.Equal(t, metainfo.Hash(bytes.Repeat([]byte{2}, 20)), md.PieceHashes[1])
}

func TestDecodeSingleFile(t *testing.T) {
	data := encodeTorrent(t, map[string]any{
		"name":         "movie.mkv",
		"piece length": 32768,
		"pieces":       pieceHashes(2),
		"length":       65536,
		"private":      1,
	})

	md, err := metainfo.Decode(data)
	require.NoError(t, err)

	assert.False(t, md.MultiFile)
	assert.True(t, md.Private)
	require.Len(t, md.Files, 1)
	assert.Equal(t, []string{"movie.mkv"}, md.Files[0].Path)
	assert.Equal(t, int64(65536), md.Files[0].Length)
	assert.Equal(t, int64(32768), md.PieceSize(1))
}

func TestInfoHashIsDigestOfRawInfo(t *testing.T) {
	info := multiFileInfo()
	data := encodeTorrent(t, info)

	md, err := metainfo.Decode(data)
	require.NoError(t, err)

	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	assert.Equal(t, infoBytes, md.InfoBytes)
	assert.Equal(t, metainfo.Hash(sha1.Sum(infoBytes)), md.InfoHash)
	assert.Len(t, md.HexHash(), 40)
	assert.True(t, bytes.Contains(md.Raw, md.InfoBytes))
}

func TestInfoHashStableAcrossReencoding(t *testing.T) {
	infos := []map[string]any{
		multiFileInfo(),
		{"name": "x", "piece length": 1, "pieces": pieceHashes(4), "length": 4},
		{"name": "y", "piece length": 7, "pieces": []byte{}, "length": 0, "source": "extra key kept in hash"},
	}

	for _, info := range infos {
		md, err := metainfo.Decode(encodeTorrent(t, info))
		require.NoError(t, err)

		var generic any
		require.NoError(t, bencode.Unmarshal(md.InfoBytes, &generic))

		reencoded, err := bencode.Marshal(map[string]any{"info": generic})
		require.NoError(t, err)

		again, err := metainfo.Decode(reencoded)
		require.NoError(t, err)

		assert.Equal(t, md.InfoHash, again.InfoHash)
	}
}

func TestFileOffsetsArePrefixSums(t *testing.T) {
	lengths := []int{0, 1, 16383, 16384, 16385, 0, 99999, 7}

	files := make([]any, 0, len(lengths))
	total := 0

	for i, l := range lengths {
		files = append(files, map[string]any{"length": l, "path": []string{"f", string(rune('a' + i))}})
		total += l
	}

	pieceLen := 16384
	md, err := metainfo.Decode(encodeTorrent(t, map[string]any{
		"name":         "prefix",
		"piece length": pieceLen,
		"pieces":       pieceHashes((total + pieceLen - 1) / pieceLen),
		"files":        files,
	}))
	require.NoError(t, err)

	var sum int64
	for i, f := range md.Files {
		assert.Equal(t, sum, f.Offset, "offset of file %d", i)
		sum += f.Length
	}

	assert.Equal(t, md.TotalLength(), sum)
}

func TestDecodeMalformed(t *testing.T) {
	withInfo := func(mutate func(map[string]any)) []byte {
		info := multiFileInfo()
		mutate(info)

		data, err := bencode.Marshal(map[string]any{"info": info})
		require.NoError(t, err)

		return data
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty input", nil, metainfo.ErrInvalidTorrentStructure},
		{"not bencode", []byte("hello"), metainfo.ErrInvalidTorrentStructure},
		{"not a dict", []byte("li1ee"), metainfo.ErrInvalidTorrentStructure},
		{"trailing garbage", append(encodeTorrent(t, multiFileInfo()), 'x'), metainfo.ErrInvalidTorrentStructure},
		{"truncated", encodeTorrent(t, multiFileInfo())[:50], metainfo.ErrInvalidTorrentStructure},
		{"missing info", []byte("d8:announce3:urle"), metainfo.ErrInvalidInfoDict},
		{"info not dict", []byte("d4:infoi1ee"), metainfo.ErrInvalidInfoDict},
		{"missing pieces", withInfo(func(m map[string]any) { delete(m, "pieces") }), metainfo.ErrInvalidPieces},
		{"pieces not multiple of 20", withInfo(func(m map[string]any) { m["pieces"] = make([]byte, 41) }), metainfo.ErrInvalidPieces},
		{"missing piece length", withInfo(func(m map[string]any) { delete(m, "piece length") }), metainfo.ErrInvalidPieceLength},
		{"zero piece length", withInfo(func(m map[string]any) { m["piece length"] = 0 }), metainfo.ErrInvalidPieceLength},
		{"no length or files", withInfo(func(m map[string]any) { delete(m, "files") }), metainfo.ErrInvalidFileStructure},
		{"length and files", withInfo(func(m map[string]any) { m["length"] = 5 }), metainfo.ErrInvalidFileStructure},
		{"empty files", withInfo(func(m map[string]any) { m["files"] = []any{} }), metainfo.ErrInvalidFileStructure},
		{"negative file length", withInfo(func(m map[string]any) {
			m["files"] = []any{map[string]any{"length": -1, "path": []string{"a"}}}
		}), metainfo.ErrInvalidFileStructure},
		{"empty path", withInfo(func(m map[string]any) {
			m["files"] = []any{map[string]any{"length": 1, "path": []string{}}}
		}), metainfo.ErrInvalidFilePath},
		{"path traversal", withInfo(func(m map[string]any) {
			m["files"] = []any{map[string]any{"length": 40000, "path": []string{"..", "etc"}}}
		}), metainfo.ErrInvalidFilePath},
		{"piece count mismatch", withInfo(func(m map[string]any) { m["pieces"] = pieceHashes(2) }), metainfo.ErrInconsistentData},
		{"wrong field type", withInfo(func(m map[string]any) { m["piece length"] = "big" }), metainfo.ErrInvalidInfoDict},
		{"total length overflows", withInfo(func(m map[string]any) {
			huge := map[string]any{"length": int64(1) << 62, "path": []string{"x"}}
			m["files"] = []any{huge, huge, huge, huge}
			m["pieces"] = []byte{}
		}), metainfo.ErrInconsistentData},
		{"single file at int64 limit", withInfo(func(m map[string]any) {
			delete(m, "files")
			m["length"] = int64(math.MaxInt64)
			m["pieces"] = []byte{}
		}), metainfo.ErrInconsistentData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := metainfo.Decode(tt.data)
			require.Error(t, err)
			assert.Nil(t, md)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, metainfo.ErrMalformedMetadata)

			var verr *metainfo.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestLoad(t *testing.T) {
	md, err := metainfo.Load(bytes.NewReader(encodeTorrent(t, multiFileInfo())))
	require.NoError(t, err)
	assert.Equal(t, 2, len(md.Files))

	_, err = metainfo.Load(strings.NewReader("d4:infod"))
	assert.ErrorIs(t, err, metainfo.ErrMalformedMetadata)
}
