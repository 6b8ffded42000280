package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NamanBalaji/tfetch/internal/errors"
)

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer

	code := run([]string{"-version"}, &out)
	assert.Equal(t, errors.ExitOK, code)
	assert.True(t, strings.HasPrefix(out.String(), "tfetch "), out.String())
	assert.NotEqual(t, "tfetch \n", out.String())
}

func TestVersionFromLinker(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	assert.Equal(t, "v1.2.3", versionString())
}

func TestRunRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no source", nil, errors.ExitFailure},
		{"two sources", []string{"a.torrent", "b.torrent"}, errors.ExitFailure},
		{"unknown flag", []string{"-nope", "a.torrent"}, errors.ExitFailure},
		{"name with a directory", []string{"-name", "../out.bin", "a.torrent"}, errors.ExitIO},
		{"listen port out of range", []string{"-listen-port", "70000", "a.torrent"}, errors.ExitIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			assert.Equal(t, tt.want, run(tt.args, &out))
			assert.Empty(t, out.String())
		})
	}
}
