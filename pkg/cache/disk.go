package cache

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pippellia-btc/blossom"

	"github.com/nsyte/gateway/pkg/events"
)

const decompressedSuffix = "-decompressed"

// disk is the persistent tier of the cache. Each site gets its own
// directory holding its manifest event and its blobs, named by hash.
// An empty root disables the tier: reads miss and writes are dropped.
type disk struct {
	root string
}

// sitePath returns the directory of the site. Named sites use their
// identifier, root sites use "@root", which no identifier can collide
// with since "@" is not in the identifier alphabet.
func (d disk) sitePath(site events.Site) string {
	name := "@root"
	if site.Identifier != "" {
		name = site.Identifier
	}
	return filepath.Join(d.root, site.Npub(), name)
}

func (d disk) readManifest(site events.Site) (events.Manifest, error) {
	if d.root == "" {
		return events.Manifest{}, fs.ErrNotExist
	}

	data, err := os.ReadFile(filepath.Join(d.sitePath(site), "manifest.json"))
	if err != nil {
		return events.Manifest{}, err
	}

	var event nostr.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return events.Manifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	manifest, err := events.ParseManifest(&event)
	if err != nil {
		return events.Manifest{}, err
	}
	return manifest, manifest.Validate()
}

func (d disk) writeManifest(site events.Site, event *nostr.Event) error {
	if d.root == "" {
		return nil
	}

	dir := d.sitePath(site)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644)
}

func (d disk) readBlob(key BlobKey) ([]byte, error) {
	if d.root == "" {
		return nil, fs.ErrNotExist
	}

	path := filepath.Join(d.sitePath(key.Site), blobFilename(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// a raw blob is named by its hash, so corruption is detectable
	if key.Variant == Raw && blossom.ComputeHash(data).Hex() != key.Hash {
		os.Remove(path)
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (d disk) writeBlob(key BlobKey, data []byte) error {
	if d.root == "" {
		return nil
	}

	dir := d.sitePath(key.Site)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, blobFilename(key)), data, 0644)
}

func (d disk) removeBlob(site events.Site, hash string) {
	if d.root == "" {
		return
	}

	dir := d.sitePath(site)
	os.Remove(filepath.Join(dir, hash))
	os.Remove(filepath.Join(dir, hash+decompressedSuffix))
}

func blobFilename(key BlobKey) string {
	if key.Variant == Decompressed {
		return key.Hash + decompressedSuffix
	}
	return key.Hash
}
