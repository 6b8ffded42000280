package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/NamanBalaji/tfetch/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultRequestTimeout = 2 * time.Minute
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 10
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 4

	DefaultUserAgent = "tfetch/1.0"
)

type Client struct {
	*http.Client
}

// NewClient creates a new HTTP client with custom transport settings.
func NewClient() *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		MaxConnsPerHost:       maxConnsPerHost,
	}

	return &Client{
		&http.Client{
			Transport: transport,
			Timeout:   defaultRequestTimeout,
		},
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// GetBytes performs a GET request and returns the whole body. Bodies longer
// than maxBytes fail with ErrBodyTooLarge; maxBytes <= 0 disables the cap.
func (c *Client) GetBytes(ctx context.Context, urlStr string, maxBytes int64) ([]byte, error) {
	req, err := generateRequest(ctx, urlStr, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending GET request to %s", urlStr)

	resp, err := c.Do(req)
	if err != nil {
		logger.Errorf("GET request failed for %s: %v", urlStr, err)
		return nil, fmt.Errorf("%w: %w", ClassifyError(err), err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("Failed to close response body: %v", err)
		}
	}()

	logger.Debugf("GET response for %s: status=%d", urlStr, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		classified := ClassifyHTTPError(resp.StatusCode)
		if classified == nil {
			classified = ErrUnexpectedStatus
		}

		return nil, &StatusError{StatusCode: resp.StatusCode, Err: classified}
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ClassifyError(err), err)
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBytes)
	}

	return data, nil
}

// generateRequest creates a new HTTP request with the specified method and URL.
func generateRequest(ctx context.Context, urlStr, method string, headers map[string]string) (*http.Request, error) {
	logger.Debugf("Creating %s request for URL: %s", method, urlStr)

	req, err := http.NewRequestWithContext(ctx, method, urlStr, http.NoBody)
	if err != nil {
		logger.Errorf("Failed to create %s request for %s: %v", method, urlStr, err)
		return nil, fmt.Errorf("%w: %w", ErrRequestCreation, err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/x-bittorrent, */*")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}
