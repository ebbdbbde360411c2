package events

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

const KindRelayList = 10002

type RelayList []Relay

type Relay struct {
	URL   string
	Read  bool
	Write bool
}

func (l RelayList) Validate() error {
	for _, relay := range l {
		if err := relay.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r Relay) Validate() error {
	if !nostr.IsValidRelayURL(r.URL) {
		return fmt.Errorf("invalid relay URL: %s", r.URL)
	}
	if !r.Read && !r.Write {
		return fmt.Errorf("at least one of read or write must be true")
	}
	return nil
}

// ParseRelayList extracts a RelayList from a nostr.Event.
// An "r" tag without a marker advertises the relay for both reads and writes.
// Returns an error if the event kind is wrong.
func ParseRelayList(event *nostr.Event) (RelayList, error) {
	if event.Kind != KindRelayList {
		return RelayList{}, fmt.Errorf("invalid kind: expected %d, got %d", KindRelayList, event.Kind)
	}

	relays := RelayList{}
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}

		relay := Relay{URL: tag[1]}
		if len(tag) == 2 {
			relay.Read = true
			relay.Write = true
		}
		for _, marker := range tag[2:] {
			if marker == "read" {
				relay.Read = true
			}
			if marker == "write" {
				relay.Write = true
			}
		}

		relays = append(relays, relay)
	}
	return relays, nil
}

// ValidateRelayList parses and validates a relay list event.
func ValidateRelayList(event *nostr.Event) error {
	relays, err := ParseRelayList(event)
	if err != nil {
		return err
	}
	return relays.Validate()
}

// WriteRelays returns the URLs the publisher writes events to,
// which are the ones to query for events authored by them.
func (l RelayList) WriteRelays() []string {
	urls := make([]string, 0, len(l))
	for _, relay := range l {
		if relay.Write {
			urls = append(urls, relay.URL)
		}
	}
	return urls
}
