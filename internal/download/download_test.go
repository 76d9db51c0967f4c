package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yukistavailable/NeuralTailor/internal/config"
)

func newTestClient(t *testing.T, cfg config.DownloadConfig) *Client {
	t.Helper()
	if cfg.AllowedHosts == nil {
		cfg.AllowedHosts = []string{"127.0.0.1"}
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestFetchWritesDestination(t *testing.T) {
	payload := []byte("dataset bundle payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	c := newTestClient(t, config.DownloadConfig{})
	err := c.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, SHA256: digestOf(payload)})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoFileExists(t, dest+".partial")
}

func TestFetchRejectsUnknownHost(t *testing.T) {
	c := newTestClient(t, config.DownloadConfig{AllowedHosts: []string{"data.example.org"}})

	err := c.Fetch(context.Background(), Request{
		URL:  "https://evil.example.com/bundle.tar.gz",
		Dest: filepath.Join(t.TempDir(), "bundle.tar.gz"),
	})
	require.ErrorIs(t, err, ErrHostNotAllowed)
}

func TestFetchRejectsLookalikeHost(t *testing.T) {
	c := newTestClient(t, config.DownloadConfig{AllowedHosts: []string{"data.example.org"}})

	// cyrillic "а" in place of the latin one
	err := c.Fetch(context.Background(), Request{
		URL:  "https://dаta.example.org/bundle.tar.gz",
		Dest: filepath.Join(t.TempDir(), "bundle.tar.gz"),
	})
	require.ErrorIs(t, err, ErrHostNotAllowed)
}

func TestFetchDigestMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	c := newTestClient(t, config.DownloadConfig{})
	err := c.Fetch(context.Background(), Request{
		URL:    srv.URL,
		Dest:   dest,
		SHA256: strings.Repeat("0", 64),
	})
	require.ErrorIs(t, err, ErrDigestMismatch)
	require.NoFileExists(t, dest)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	payload := []byte("eventually fine")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	c := newTestClient(t, config.DownloadConfig{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
	err := c.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, SHA256: digestOf(payload)})
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, config.DownloadConfig{MaxRetries: 1, RetryBackoff: time.Millisecond})
	err := c.Fetch(context.Background(), Request{
		URL:  srv.URL,
		Dest: filepath.Join(t.TempDir(), "bundle.tar.gz"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestFetchResumesPartial(t *testing.T) {
	payload := []byte("0123456789abcdef")
	var sawRange atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			_, _ = w.Write(payload)
			return
		}
		sawRange.Store(true)
		var offset int64
		_, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &offset)
		require.NoError(t, err)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[offset:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(dest+".partial", payload[:6], 0o600))

	c := newTestClient(t, config.DownloadConfig{})
	err := c.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, SHA256: digestOf(payload)})
	require.NoError(t, err)
	require.True(t, sawRange.Load())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFetchRestartsWhenRangeIgnored(t *testing.T) {
	payload := []byte("full body every time")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// plain 200 regardless of the Range header
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(dest+".partial", []byte("stale prefix"), 0o600))

	c := newTestClient(t, config.DownloadConfig{})
	err := c.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, SHA256: digestOf(payload)})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestNewClientRejectsBadAllowListEntry(t *testing.T) {
	_, err := NewClient(config.DownloadConfig{AllowedHosts: []string{"bad host!"}})
	require.Error(t, err)
}
