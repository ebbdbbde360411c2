package events

import (
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

const KindBlossomAuth = 24242

// DeleteAuth builds the unsigned kind-24242 authorization event for deleting
// the given blobs from a blossom server. The caller is responsible for
// signing it before use.
func DeleteAuth(hashes []string, expiration time.Time) nostr.Event {
	tags := nostr.Tags{{"t", "delete"}}
	for _, hash := range hashes {
		tags = append(tags, nostr.Tag{"x", hash})
	}
	tags = append(tags, nostr.Tag{"expiration", strconv.FormatInt(expiration.Unix(), 10)})

	return nostr.Event{
		Kind:      KindBlossomAuth,
		CreatedAt: nostr.Now(),
		Content:   "delete blobs",
		Tags:      tags,
	}
}
