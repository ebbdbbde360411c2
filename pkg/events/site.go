package events

import (
	"fmt"
	"regexp"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// identifierRegexp matches valid site identifiers,
// the "d" tag values of named site manifests.
var identifierRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Site identifies a static site published on nostr: the root site of a
// pubkey, or one of its named sites when Identifier is set.
type Site struct {
	Pubkey     string // hex
	Identifier string // empty for root sites
}

// NewSite builds a Site from a pubkey (hex or npub) and an optional identifier.
func NewSite(pubkey, identifier string) (Site, error) {
	hex, err := ToPubkey(pubkey)
	if err != nil {
		return Site{}, err
	}

	if identifier != "" && !identifierRegexp.MatchString(identifier) {
		return Site{}, fmt.Errorf("invalid site identifier: %s", identifier)
	}
	return Site{Pubkey: hex, Identifier: identifier}, nil
}

// Kind returns the manifest kind of the site.
func (s Site) Kind() int {
	if s.Identifier != "" {
		return KindNamedManifest
	}
	return KindRootManifest
}

// Npub returns the bech32 encoding of the site's pubkey,
// falling back to hex if the pubkey cannot be encoded.
func (s Site) Npub() string {
	npub, err := nip19.EncodePublicKey(s.Pubkey)
	if err != nil {
		return s.Pubkey
	}
	return npub
}

// String returns the subdomain that selects the site,
// e.g. "npub1..." for a root site, "blog.npub1..." for a named one.
func (s Site) String() string {
	if s.Identifier != "" {
		return s.Identifier + "." + s.Npub()
	}
	return s.Npub()
}

// Filter returns the nostr filter matching the manifest of the site.
func (s Site) Filter() nostr.Filter {
	filter := nostr.Filter{
		Kinds:   []int{s.Kind()},
		Authors: []string{s.Pubkey},
	}
	if s.Identifier != "" {
		filter.Tags = nostr.TagMap{"d": []string{s.Identifier}}
	}
	return filter
}
