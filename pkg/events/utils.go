package events

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Find the value of the first tag with the given key.
func Find(tags nostr.Tags, key string) (string, bool) {
	for _, tag := range tags {
		if len(tag) > 1 && tag[0] == key {
			return tag[1], true
		}
	}
	return "", false
}

// ToPubkey tries to parse a string into a hex pubkey.
// It supports both hex and npub formats.
func ToPubkey(pk string) (string, error) {
	if nostr.IsValid32ByteHex(pk) {
		return pk, nil
	}

	if strings.HasPrefix(pk, "npub1") {
		_, data, err := nip19.Decode(pk)
		if err != nil {
			return "", fmt.Errorf("invalid pubkey: %w", err)
		}
		return data.(string), nil
	}

	return "", fmt.Errorf("invalid pubkey: %s", pk)
}
