package events

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

const KindServerList = 10063

// ServerList is the list of blob servers a publisher mirrors their blobs to,
// parsed from a kind-10063 event. Order reflects the publisher's preference.
type ServerList []string

func (l ServerList) Validate() error {
	for _, server := range l {
		if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
			return fmt.Errorf("invalid server URL: %s", server)
		}
	}
	return nil
}

// ParseServerList extracts a ServerList from a nostr.Event.
// Returns an error if the event kind is wrong.
func ParseServerList(event *nostr.Event) (ServerList, error) {
	if event.Kind != KindServerList {
		return ServerList{}, fmt.Errorf("invalid kind: expected %d, got %d", KindServerList, event.Kind)
	}

	servers := ServerList{}
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag[0] != "server" {
			continue
		}
		servers = append(servers, strings.TrimRight(tag[1], "/"))
	}
	return servers, nil
}

// ValidateServerList parses and validates a server list event.
func ValidateServerList(event *nostr.Event) error {
	servers, err := ParseServerList(event)
	if err != nil {
		return err
	}
	return servers.Validate()
}
