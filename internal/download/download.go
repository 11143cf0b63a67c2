// Package download streams recording files from the conferencing platform to local storage.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single file transfer.
const DefaultTimeout = 2 * time.Hour

// Client downloads files with a bearer token.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient returns a Client. A nil httpClient gets DefaultTimeout.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, logger: logger}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download status: %d", e.Code)
}

// Fetch streams url into dst. dst only appears once the whole body was written.
// Client errors other than 408 and 429 are permanent and not worth retrying.
func (c *Client) Fetch(ctx context.Context, dst, url, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		serr := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(serr)
		}
		return serr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return backoff.Permanent(fmt.Errorf("create directory: %w", err))
	}
	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			c.logger.Debug("cleanup pending file", zap.String("path", dst), zap.Error(err))
		}
	}()

	n, err := io.Copy(pending, resp.Body)
	if err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", dst, err)
	}
	c.logger.Debug("file downloaded", zap.String("path", dst), zap.Int64("bytes", n))
	return nil
}
