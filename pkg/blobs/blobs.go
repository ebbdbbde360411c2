// Package blobs downloads content-addressed blobs from blossom servers.
// Every blob is verified against its sha256 before being returned, so a
// misbehaving server can never alter the content of a site.
package blobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pippellia-btc/blossom"
	"golang.org/x/sync/semaphore"

	"github.com/nsyte/gateway/pkg/events"
)

var (
	ErrBlobNotFound     = errors.New("blob not found")
	ErrHashMismatch     = errors.New("blob does not match its sha256")
	ErrNoServers        = errors.New("no blob servers to try")
	ErrAllServersFailed = errors.New("all blob servers failed")
)

type Client struct {
	http   http.Client
	config Config
}

// NewClient returns a client from the provided [Config], which is assumed to have been validated.
func NewClient(c Config) Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: c.DialTimeout}).DialContext,
	}
	return Client{
		http:   http.Client{Timeout: c.Timeout, Transport: transport},
		config: c,
	}
}

// Download fetches the blob with the given hash from the server and
// verifies it. Returns [ErrHashMismatch] if the body does not hash to
// the requested sha256.
func (c Client) Download(ctx context.Context, server, hash string) ([]byte, error) {
	if err := blossom.ValidateHash(hash); err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, blobURL(server, hash), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("failed to download: %w", ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to download: status %s", res.Status)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	if blossom.ComputeHash(data).Hex() != strings.ToLower(hash) {
		return nil, fmt.Errorf("failed to download from %s: %w", server, ErrHashMismatch)
	}
	return data, nil
}

// Check reports whether the server has the blob.
func (c Client) Check(ctx context.Context, server, hash string) (bool, error) {
	if err := blossom.ValidateHash(hash); err != nil {
		return false, fmt.Errorf("failed to check: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodHead, blobURL(server, hash), nil,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("failed to check: status %s", res.Status)
	}
}

// Delete asks the server to delete the blob, authorizing the request with
// a kind-24242 event signed by the secret key.
// Returns nil if the blob was deleted or did not exist.
func (c Client) Delete(ctx context.Context, server, hash, secretKey string) error {
	if err := blossom.ValidateHash(hash); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}

	auth := events.DeleteAuth([]string{hash}, time.Now().Add(time.Minute))
	if err := auth.Sign(secretKey); err != nil {
		return fmt.Errorf("failed to sign authorization: %w", err)
	}

	payload, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodDelete, blobURL(server, hash), nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Nostr "+base64.StdEncoding.EncodeToString(payload))

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound ||
		(res.StatusCode >= 200 && res.StatusCode < 300) {
		return nil
	}
	return fmt.Errorf("failed to delete: status %s", res.Status)
}

// blobURL returns the request URL for the blob on the server.
func blobURL(server, hash string) string {
	return strings.TrimRight(server, "/") + "/" + strings.ToLower(hash)
}

// Downloader fetches blobs across multiple servers, bounding the number
// of concurrent downloads per server.
type Downloader struct {
	client Client
	config Config

	mu    sync.Mutex
	slots map[string]*semaphore.Weighted
}

// NewDownloader returns a downloader from the provided [Config], which is assumed to have been validated.
func NewDownloader(config Config) *Downloader {
	return &Downloader{
		client: NewClient(config),
		config: config,
		slots:  make(map[string]*semaphore.Weighted),
	}
}

// Client returns the underlying blossom client.
func (d *Downloader) Client() Client { return d.client }

// Fetch downloads the blob, trying the endorsed servers first and the
// configured ones after. Servers that fail are skipped; the first verified
// blob wins. Returns the blob and the server that provided it.
func (d *Downloader) Fetch(ctx context.Context, hash string, endorsed []string) ([]byte, string, error) {
	servers := MergeServers(endorsed, d.config.Servers)
	if len(servers) == 0 {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", hash, ErrNoServers)
	}

	for _, server := range servers {
		if err := d.acquire(ctx, server); err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", hash, err)
		}

		data, err := d.client.Download(ctx, server, hash)
		d.release(server)

		if err != nil {
			slog.Debug("blobs: server failed", "server", server, "hash", hash, "error", err)
			continue
		}
		return data, server, nil
	}

	return nil, "", fmt.Errorf("failed to fetch %s from %s: %w",
		hash, strings.Join(servers, ", "), ErrAllServersFailed)
}

func (d *Downloader) acquire(ctx context.Context, server string) error {
	d.mu.Lock()
	slot, ok := d.slots[server]
	if !ok {
		slot = semaphore.NewWeighted(int64(d.config.MaxPerServer))
		d.slots[server] = slot
	}
	d.mu.Unlock()

	return slot.Acquire(ctx, 1)
}

func (d *Downloader) release(server string) {
	d.mu.Lock()
	slot := d.slots[server]
	d.mu.Unlock()

	slot.Release(1)
}

// MergeServers concatenates the two server lists, dropping trailing slashes,
// duplicates and entries that are not http(s) URLs. Order is preserved, so
// the first list is tried first.
func MergeServers(first, second []string) []string {
	all := slices.Concat(first, second)

	merged := make([]string, 0, len(all))
	seen := make(map[string]bool, len(all))

	for _, server := range all {
		server = strings.TrimRight(server, "/")
		if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
			continue
		}
		if seen[server] {
			continue
		}

		seen[server] = true
		merged = append(merged, server)
	}
	return merged
}
