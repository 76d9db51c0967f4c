// Package download fetches dataset bundles over HTTP with a host allow-list,
// rate limiting, retries, resume and digest verification.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/time/rate"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/log"
	"github.com/yukistavailable/NeuralTailor/internal/metrics"
)

var (
	// ErrHostNotAllowed indicates the URL host is outside the allow-list.
	ErrHostNotAllowed = errors.New("download: host not allowed")

	// ErrDigestMismatch indicates the downloaded bytes do not match the
	// expected SHA-256 digest.
	ErrDigestMismatch = errors.New("download: digest mismatch")
)

// Request describes one bundle download.
type Request struct {
	URL  string
	Dest string

	// SHA256 is the expected hex digest; empty skips verification.
	SHA256 string
}

// Client downloads dataset bundles.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	allowed    map[string]struct{}
	maxRetries int
	backoff    time.Duration
}

// NewClient builds a download client from configuration. An empty allow-list
// rejects every host.
func NewClient(cfg config.DownloadConfig) (*Client, error) {
	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, raw := range cfg.AllowedHosts {
		host, err := normalizeHost(raw)
		if err != nil {
			return nil, fmt.Errorf("download: allow-list entry %q: %w", raw, err)
		}
		allowed[host] = struct{}{}
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		limiter:    rate.NewLimiter(limit, burst),
		allowed:    allowed,
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
	}, nil
}

// normalizeHost lowercases and IDNA-normalizes a host so lookalike unicode
// hosts cannot slip past the allow-list.
func normalizeHost(raw string) (string, error) {
	host := strings.TrimSuffix(strings.TrimSpace(raw), ".")
	if host == "" {
		return "", errors.New("empty host")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// checkURL validates the request URL against the allow-list.
func (c *Client) checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("download: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("download: unsupported scheme %q", u.Scheme)
	}
	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return nil, err
	}
	if _, ok := c.allowed[host]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return u, nil
}

// Fetch downloads the bundle to req.Dest. Partial downloads are resumed with
// a Range request when the server honors them; the final file appears
// atomically via rename from a .partial sibling.
func (c *Client) Fetch(ctx context.Context, req Request) error {
	logger := log.WithComponent("download")

	if _, err := c.checkURL(req.URL); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o750); err != nil {
		return fmt.Errorf("download: create destination dir: %w", err)
	}

	partial := req.Dest + ".partial"
	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// full jitter keeps concurrent retries apart
			delay := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff *= 2
			logger.Warn().Err(lastErr).Int(log.FieldAttempt, attempt).
				Str("url", req.URL).Msg("retrying download")
		}

		lastErr = c.fetchOnce(ctx, req, partial)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a corrupt complete file cannot be resumed into a good one
		if errors.Is(lastErr, ErrDigestMismatch) {
			_ = os.Remove(partial)
		}
	}
	return lastErr
}

func (c *Client) fetchOnce(ctx context.Context, req Request, partial string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// server ignored the Range header; start over
		flags |= os.O_TRUNC
		offset = 0
	default:
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	f, err := os.OpenFile(partial, flags, 0o600) // #nosec G304 -- dest chosen by caller
	if err != nil {
		return err
	}
	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	metrics.DownloadBytesTotal.Add(float64(written))
	if err != nil {
		return err
	}

	if req.SHA256 != "" {
		if err := verifyDigest(partial, req.SHA256); err != nil {
			return err
		}
	}
	if err := os.Rename(partial, req.Dest); err != nil {
		return err
	}

	logger := log.WithComponent("download")
	logger.Info().Str("event", "download.done").
		Str("url", req.URL).Str(log.FieldFinalPath, req.Dest).
		Int64("bytes", offset+written).Msg("download finished")
	return nil
}

func verifyDigest(path, expected string) error {
	f, err := os.Open(path) // #nosec G304 -- verifying our own partial file
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, expected) {
		return fmt.Errorf("%w: got %s want %s", ErrDigestMismatch, got, expected)
	}
	return nil
}
