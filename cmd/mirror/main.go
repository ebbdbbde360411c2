// Command mirror downloads a complete nsite to a local directory.
//
// It resolves the newest site manifest from the relays, then fetches every
// listed blob from the site's blob servers, verifying each sha256. Compressed
// variants (.br/.gz) are skipped when the manifest also lists the plain file;
// when only a compressed variant exists, it is downloaded and written
// decompressed under the logical path.
//
// The tool is idempotent: re-running it skips files that already exist with
// the right content.
//
// Relays and servers default to the gateway configuration (env variables and
// the .env file), and can be overridden with flags.
//
// Usage:
//
//	go run ./cmd/mirror \
//	  -site blog.npub1... \
//	  -out ./mirror \
//	  -relays wss://relay.damus.io,wss://nos.lol \
//	  -servers https://blossom.primal.net
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/pippellia-btc/blossom"

	"github.com/nsyte/gateway/pkg/blobs"
	"github.com/nsyte/gateway/pkg/config"
	"github.com/nsyte/gateway/pkg/events"
	"github.com/nsyte/gateway/pkg/pool"
	"github.com/nsyte/gateway/pkg/resolver"
	"github.com/nsyte/gateway/pkg/store"
)

func main() {
	siteFlag := flag.String("site", "", "site to mirror: npub, identifier.npub, or hex pubkey")
	out := flag.String("out", "", "output directory (created if missing)")
	relaysFlag := flag.String("relays", "", "comma-separated relays overriding the configured ones")
	serversFlag := flag.String("servers", "", "comma-separated blob servers overriding the configured ones")
	flag.Parse()

	if *siteFlag == "" || *out == "" {
		fmt.Fprintf(os.Stderr, "Usage: mirror -site <npub|identifier.npub|hex> -out <dir> [-relays <csv>] [-servers <csv>]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	site, err := parseSite(*siteFlag)
	if err != nil {
		log.Fatalf("invalid site: %v", err)
	}

	config, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *relaysFlag != "" {
		config.Resolver.FileRelays = splitCSV(*relaysFlag)
	}
	if *serversFlag != "" {
		config.Blobs.Servers = splitCSV(*serversFlag)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()

	relayPool := pool.New(ctx, config.Pool)
	siteResolver := resolver.New(relayPool, store.New(), config.Resolver)
	downloader := blobs.NewDownloader(config.Blobs)

	log.Printf("resolving manifest for %s", site.String())
	manifest, err := siteResolver.Resolve(ctx, site)
	if err != nil {
		log.Fatalf("failed to resolve site: %v", err)
	}
	log.Printf("manifest %s lists %d files", manifest.Event.ID, len(manifest.Files))

	if err := os.MkdirAll(*out, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	files := manifest.PathMap()
	var stats struct {
		total, written, existed, variants, failed int
	}

	for _, entry := range manifest.Files {
		stats.total++

		logical, compression := logicalPath(entry.Path)
		if compression != "" {
			if _, ok := files[logical]; ok {
				// the plain file is listed too, mirror that one instead
				stats.variants++
				continue
			}
		}

		if strings.Contains(logical, "..") {
			log.Printf("refusing path escaping the output directory: %s", entry.Path)
			stats.failed++
			continue
		}

		destination := filepath.Join(*out, filepath.FromSlash(strings.TrimPrefix(logical, "/")))

		if compression == "" && fileMatches(destination, entry.Hash) {
			stats.existed++
			continue
		}

		data, server, err := downloader.Fetch(ctx, entry.Hash, manifest.Servers)
		if err != nil {
			log.Printf("failed to fetch %s: %v", entry.Path, err)
			stats.failed++
			continue
		}

		if compression != "" {
			data, err = decompress(compression, data)
			if err != nil {
				log.Printf("failed to decompress %s: %v", entry.Path, err)
				stats.failed++
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
			log.Fatalf("failed to create directory for %s: %v", logical, err)
		}
		if err := os.WriteFile(destination, data, 0644); err != nil {
			log.Fatalf("failed to write %s: %v", destination, err)
		}

		log.Printf("wrote %s (%d bytes, from %s)", logical, len(data), server)
		stats.written++
	}

	log.Printf("done in %s: %d files, %d written, %d up to date, %d compressed variants skipped, %d failed",
		time.Since(start).Round(time.Millisecond),
		stats.total, stats.written, stats.existed, stats.variants, stats.failed)

	if stats.failed > 0 {
		os.Exit(1)
	}
}

// parseSite accepts "npub1...", "identifier.npub1..." or a hex pubkey.
func parseSite(s string) (events.Site, error) {
	if identifier, pubkey, found := strings.Cut(s, "."); found {
		return events.NewSite(pubkey, identifier)
	}
	return events.NewSite(s, "")
}

// logicalPath strips a compression suffix, returning the logical file
// path and the compression it was stored with.
func logicalPath(path string) (string, string) {
	switch {
	case strings.HasSuffix(path, ".br"):
		return strings.TrimSuffix(path, ".br"), "br"
	case strings.HasSuffix(path, ".gz"):
		return strings.TrimSuffix(path, ".gz"), "gz"
	}
	return path, ""
}

// fileMatches reports whether the file already holds content with the hash.
func fileMatches(path, hash string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return blossom.ComputeHash(data).Hex() == strings.ToLower(hash)
}

func decompress(compression string, data []byte) ([]byte, error) {
	switch compression {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))

	case "gz":
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	}
	return nil, fmt.Errorf("unknown compression %q", compression)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
