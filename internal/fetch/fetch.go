// Package fetch retrieves torrent descriptors over HTTP or from disk.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/logger"
	httpPkg "github.com/NamanBalaji/tfetch/pkg/http"
)

const DefaultMaxBytes = 16 << 20

// Fetcher loads descriptor bytes. Every failure is a FETCH DownloadError, and
// a descriptor over the size cap wraps httpPkg.ErrBodyTooLarge for both
// sources.
type Fetcher struct {
	client   *httpPkg.Client
	maxBytes int64
}

// New returns a Fetcher. A nil client gets the package's tuned default.
func New(client *httpPkg.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = httpPkg.NewClient()
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Fetcher{client: client, maxBytes: maxBytes}
}

// IsRemote reports whether source is fetched over HTTP.
func IsRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetch returns the raw descriptor named by source, an http(s) URL or a path.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if IsRemote(source) {
		return f.fetchRemote(ctx, source)
	}

	return f.fetchLocal(source)
}

func (f *Fetcher) fetchRemote(ctx context.Context, source string) ([]byte, error) {
	logger.Infof("Fetching torrent from %s", source)

	data, err := f.client.GetBytes(ctx, source, f.maxBytes)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errors.NewContextError(err, source)
		}

		var statusErr *httpPkg.StatusError
		if errors.As(err, &statusErr) {
			return nil, errors.NewFetchError(err, source, statusErr.StatusCode)
		}

		return nil, errors.NewFetchError(err, source, 0)
	}

	logger.Debugf("Fetched %d bytes from %s", len(data), source)

	return data, nil
}

func (f *Fetcher) fetchLocal(source string) ([]byte, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, errors.NewFetchError(err, source, 0)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxBytes+1))
	if err != nil {
		return nil, errors.NewFetchError(err, source, 0)
	}

	if int64(len(data)) > f.maxBytes {
		return nil, errors.NewFetchError(fmt.Errorf("%w: more than %d bytes", httpPkg.ErrBodyTooLarge, f.maxBytes), source, 0)
	}

	logger.Debugf("Read %d bytes from %s", len(data), source)

	return data, nil
}
