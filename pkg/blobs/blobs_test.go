package blobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pippellia-btc/blossom"

	"github.com/nsyte/gateway/pkg/events"
)

var ctx = context.Background()

func TestDownload(t *testing.T) {
	data := []byte("hello static site")
	hash := blossom.ComputeHash(data).Hex()

	server := blobServer(t, map[string][]byte{hash: data})
	client := NewClient(testConfig())

	got, err := client.Download(ctx, server.URL, hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestDownloadNotFound(t *testing.T) {
	server := blobServer(t, nil)
	client := NewClient(testConfig())

	_, err := client.Download(ctx, server.URL, missingHash)
	if !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("got error %v, want ErrBlobNotFound", err)
	}
}

func TestDownloadHashMismatch(t *testing.T) {
	// the server lies: it returns different bytes under this hash
	server := blobServer(t, map[string][]byte{missingHash: []byte("not the real content")})
	client := NewClient(testConfig())

	_, err := client.Download(ctx, server.URL, missingHash)
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("got error %v, want ErrHashMismatch", err)
	}
}

func TestDownloadInvalidHash(t *testing.T) {
	server := blobServer(t, nil)
	client := NewClient(testConfig())

	if _, err := client.Download(ctx, server.URL, "not-a-hash"); err == nil {
		t.Errorf("expected error for invalid hash, got nil")
	}
}

func TestCheck(t *testing.T) {
	data := []byte("hello static site")
	hash := blossom.ComputeHash(data).Hex()

	server := blobServer(t, map[string][]byte{hash: data})
	client := NewClient(testConfig())

	ok, err := client.Check(ctx, server.URL, hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("expected the blob to be found")
	}

	ok, err = client.Check(ctx, server.URL, missingHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected the blob to be missing")
	}
}

func TestDelete(t *testing.T) {
	var (
		method string
		auth   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		auth = r.Header.Get("Authorization")
	}))
	t.Cleanup(server.Close)

	sk := nostr.GeneratePrivateKey()
	client := NewClient(testConfig())

	if err := client.Delete(ctx, server.URL, missingHash, sk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if method != http.MethodDelete {
		t.Errorf("got method %s, want DELETE", method)
	}
	if !strings.HasPrefix(auth, "Nostr ") {
		t.Fatalf("got authorization %q, want a Nostr scheme", auth)
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Nostr "))
	if err != nil {
		t.Fatalf("failed to decode authorization: %v", err)
	}

	var event nostr.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("failed to unmarshal authorization: %v", err)
	}

	if event.Kind != events.KindBlossomAuth {
		t.Errorf("got kind %d, want %d", event.Kind, events.KindBlossomAuth)
	}
	if ok, err := event.CheckSignature(); err != nil || !ok {
		t.Errorf("authorization is not signed correctly (ok=%v, err=%v)", ok, err)
	}
	if value, _ := events.Find(event.Tags, "x"); value != missingHash {
		t.Errorf("got x tag %q, want %q", value, missingHash)
	}
}

func TestFetchFallsThrough(t *testing.T) {
	data := []byte("served by the second server")
	hash := blossom.ComputeHash(data).Hex()

	empty := blobServer(t, nil)
	full := blobServer(t, map[string][]byte{hash: data})

	config := testConfig()
	config.Servers = []string{full.URL}
	downloader := NewDownloader(config)

	got, server, err := downloader.Fetch(ctx, hash, []string{empty.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server != full.URL {
		t.Errorf("got server %s, want %s", server, full.URL)
	}
	if !reflect.DeepEqual(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestFetchEndorsedFirst(t *testing.T) {
	data := []byte("both servers have it")
	hash := blossom.ComputeHash(data).Hex()

	first := blobServer(t, map[string][]byte{hash: data})
	second := blobServer(t, map[string][]byte{hash: data})

	config := testConfig()
	config.Servers = []string{second.URL}
	downloader := NewDownloader(config)

	_, server, err := downloader.Fetch(ctx, hash, []string{first.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server != first.URL {
		t.Errorf("got server %s, want the endorsed %s", server, first.URL)
	}
}

func TestFetchAllServersFailed(t *testing.T) {
	empty1 := blobServer(t, nil)
	empty2 := blobServer(t, nil)

	config := testConfig()
	config.Servers = []string{empty2.URL}
	downloader := NewDownloader(config)

	_, _, err := downloader.Fetch(ctx, missingHash, []string{empty1.URL})
	if !errors.Is(err, ErrAllServersFailed) {
		t.Fatalf("got error %v, want ErrAllServersFailed", err)
	}

	// the error should name every server that was tried
	if !strings.Contains(err.Error(), empty1.URL) || !strings.Contains(err.Error(), empty2.URL) {
		t.Errorf("error %q does not name the tried servers", err)
	}
}

func TestFetchNoServers(t *testing.T) {
	downloader := NewDownloader(testConfig())

	_, _, err := downloader.Fetch(ctx, missingHash, nil)
	if !errors.Is(err, ErrNoServers) {
		t.Errorf("got error %v, want ErrNoServers", err)
	}
}

func TestMergeServers(t *testing.T) {
	tests := []struct {
		name   string
		first  []string
		second []string
		want   []string
	}{
		{
			name:   "order preserved",
			first:  []string{"https://a.example.com", "https://b.example.com"},
			second: []string{"https://c.example.com"},
			want:   []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"},
		},
		{
			name:   "duplicates and trailing slashes collapse",
			first:  []string{"https://a.example.com/"},
			second: []string{"https://a.example.com", "https://b.example.com"},
			want:   []string{"https://a.example.com", "https://b.example.com"},
		},
		{
			name:   "non http URLs dropped",
			first:  []string{"wss://relay.example.com", "ftp://old.example.com"},
			second: []string{"http://a.example.com"},
			want:   []string{"http://a.example.com"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := MergeServers(test.first, test.second); !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

// ========================== TEST FIXTURES ==========================

const missingHash = "4242424242424242424242424242424242424242424242424242424242424242"

func testConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		DialTimeout:  2 * time.Second,
		MaxPerServer: 2,
	}
}

// blobServer starts a server that serves the given blobs by hash.
func blobServer(t *testing.T, blobs map[string][]byte) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := blobs[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	}))

	t.Cleanup(server.Close)
	return server
}
