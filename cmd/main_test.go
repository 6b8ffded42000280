package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/pkg/torrent/metainfo/metainfotest"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{4}, "4"},
		{[]int{1, 2, 3}, "1-3"},
		{[]int{0, 2, 3, 7, 9, 10}, "0,2-3,7,9-10"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, summarize(tt.in))
	}
}

func TestInspect(t *testing.T) {
	data := metainfotest.Encode(t, "books", 16384,
		metainfotest.File{Path: "a.pdf", Length: 25000},
		metainfotest.File{Path: "b.epub", Length: 15000},
	)

	path := filepath.Join(t.TempDir(), "books.torrent")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	var out bytes.Buffer
	require.NoError(t, inspect(context.Background(), &out, path, `b\.epub`, 4))

	text := out.String()
	assert.Contains(t, text, "books")
	assert.Contains(t, text, "2 files")
	assert.Contains(t, text, "b.epub")
	assert.Contains(t, text, "in 2 pieces")
	assert.True(t, strings.Contains(text, "now") && strings.Contains(text, "next"))

	out.Reset()
	err := inspect(context.Background(), &out, path, `c\.mobi`, 4)
	assert.ErrorIs(t, err, errors.ErrNoFilesMatched)
	assert.Contains(t, out.String(), "a.pdf", "files are listed even when nothing matches")

	err = inspect(context.Background(), &out, path, `(`, 4)
	assert.Equal(t, errors.ExitIO, errors.ExitCode(err))
}
