package events

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

const KindProfile = 0

// Profile represents a parsed kind-0 metadata event.
// The event content is a JSON document; unknown fields are ignored.
type Profile struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
	Website     string `json:"website"`
	Nip05       string `json:"nip05"`
}

// ParseProfile extracts a Profile from a nostr.Event.
// Returns an error if the event kind is wrong or the content is not valid JSON.
func ParseProfile(event *nostr.Event) (Profile, error) {
	if event.Kind != KindProfile {
		return Profile{}, fmt.Errorf("invalid kind: expected %d, got %d", KindProfile, event.Kind)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(event.Content), &profile); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile content: %w", err)
	}
	return profile, nil
}

// BestName returns the display name when set, falling back to the name.
func (p Profile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}
