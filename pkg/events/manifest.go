package events

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pippellia-btc/blossom"
)

const (
	// KindRootManifest is the replaceable event kind carrying the manifest of a root site.
	KindRootManifest = 15128

	// KindNamedManifest is the addressable event kind carrying the manifest of a named site,
	// where the "d" tag holds the site identifier.
	KindNamedManifest = 35128
)

// Manifest represents a parsed site manifest event (kind 15128 or 35128).
// Its "path" tags enumerate every file of the site and its content hash,
// so a single event is always a complete description of the site.
type Manifest struct {
	Event *nostr.Event

	D           string // site identifier, empty for root sites
	Title       string
	Description string

	Files   []FileEntry
	Servers []string // blob servers endorsed by the publisher, in tag order
	Relays  []string
}

// FileEntry is a single ["path", <path>, <sha256>] tag of a manifest.
type FileEntry struct {
	Path string // normalised to start with "/"
	Hash string // lowercase hex sha256 of the blob
}

// ParseManifest extracts a Manifest from a nostr.Event.
// Returns an error if the event kind is wrong or duplicate singular tags are found.
// Path tags with a malformed hash are dropped.
func ParseManifest(event *nostr.Event) (Manifest, error) {
	if event.Kind != KindRootManifest && event.Kind != KindNamedManifest {
		return Manifest{}, fmt.Errorf("invalid kind: expected %d or %d, got %d", KindRootManifest, KindNamedManifest, event.Kind)
	}

	manifest := Manifest{Event: event}
	seenD := false

	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}

		switch tag[0] {
		case "d":
			if seenD {
				return Manifest{}, fmt.Errorf("duplicate 'd' tag")
			}
			seenD = true
			manifest.D = tag[1]

		case "path":
			if len(tag) < 3 {
				continue
			}
			if err := blossom.ValidateHash(tag[2]); err != nil {
				continue
			}
			manifest.Files = append(manifest.Files, FileEntry{
				Path: NormalizePath(tag[1]),
				Hash: strings.ToLower(tag[2]),
			})

		case "server":
			manifest.Servers = append(manifest.Servers, tag[1])

		case "relay":
			manifest.Relays = append(manifest.Relays, tag[1])

		case "title":
			manifest.Title = tag[1]

		case "description":
			manifest.Description = tag[1]
		}
	}
	return manifest, nil
}

func (m Manifest) Validate() error {
	if m.Event.Kind == KindNamedManifest && m.D == "" {
		return fmt.Errorf("missing or empty 'd' tag (site identifier)")
	}
	if m.Event.Kind == KindRootManifest && m.D != "" {
		return fmt.Errorf("unexpected 'd' tag %q on a root site manifest", m.D)
	}
	for _, server := range m.Servers {
		if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
			return fmt.Errorf("invalid server URL: %s", server)
		}
	}
	return nil
}

// ValidateManifest parses and validates a site manifest event.
func ValidateManifest(event *nostr.Event) error {
	manifest, err := ParseManifest(event)
	if err != nil {
		return err
	}
	return manifest.Validate()
}

// PathMap returns the path to hash index derived from the manifest.
func (m Manifest) PathMap() map[string]string {
	paths := make(map[string]string, len(m.Files))
	for _, file := range m.Files {
		paths[file.Path] = file.Hash
	}
	return paths
}

// Empty reports whether the manifest lists no files.
func (m Manifest) Empty() bool { return len(m.Files) == 0 }

// NormalizePath collapses leading slashes so the path starts with exactly one "/".
func NormalizePath(path string) string {
	return "/" + strings.TrimLeft(path, "/")
}
