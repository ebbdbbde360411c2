package events

import (
	"reflect"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa01"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb02"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name    string
		event   *nostr.Event
		want    Manifest
		wantErr bool
	}{
		{
			name:    "wrong kind",
			event:   &nostr.Event{Kind: 1},
			wantErr: true,
		},
		{
			name: "duplicate d tag",
			event: &nostr.Event{
				Kind: KindNamedManifest,
				Tags: nostr.Tags{{"d", "blog"}, {"d", "docs"}},
			},
			wantErr: true,
		},
		{
			name: "root manifest with paths and servers",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{
					{"path", "/index.html", hashA},
					{"path", "assets/app.js", hashB},
					{"server", "https://blossom.example.com"},
					{"relay", "wss://relay.example.com"},
					{"title", "my site"},
				},
			},
			want: Manifest{
				Title: "my site",
				Files: []FileEntry{
					{Path: "/index.html", Hash: hashA},
					{Path: "/assets/app.js", Hash: hashB},
				},
				Servers: []string{"https://blossom.example.com"},
				Relays:  []string{"wss://relay.example.com"},
			},
		},
		{
			name: "path with invalid hash is dropped",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{
					{"path", "/index.html", "nothex"},
					{"path", "/about.html", hashA},
				},
			},
			want: Manifest{
				Files: []FileEntry{{Path: "/about.html", Hash: hashA}},
			},
		},
		{
			name: "path hash is lowercased",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{
					{"path", "/index.html", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA01"},
				},
			},
			want: Manifest{
				Files: []FileEntry{{Path: "/index.html", Hash: hashA}},
			},
		},
		{
			name: "short path tag is ignored",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{{"path", "/index.html"}},
			},
			want: Manifest{},
		},
		{
			name: "named manifest",
			event: &nostr.Event{
				Kind: KindNamedManifest,
				Tags: nostr.Tags{
					{"d", "blog"},
					{"path", "/post.html", hashA},
				},
			},
			want: Manifest{
				D:     "blog",
				Files: []FileEntry{{Path: "/post.html", Hash: hashA}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseManifest(test.event)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			test.want.Event = test.event
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name    string
		event   *nostr.Event
		wantErr bool
	}{
		{
			name: "named manifest without d tag",
			event: &nostr.Event{
				Kind: KindNamedManifest,
				Tags: nostr.Tags{{"path", "/a.html", hashA}},
			},
			wantErr: true,
		},
		{
			name: "root manifest with d tag",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{{"d", "blog"}},
			},
			wantErr: true,
		},
		{
			name: "invalid server URL",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{{"server", "ftp://blossom.example.com"}},
			},
			wantErr: true,
		},
		{
			name: "valid empty root manifest",
			event: &nostr.Event{
				Kind: KindRootManifest,
				Tags: nostr.Tags{},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateManifest(test.event)
			if (err != nil) != test.wantErr {
				t.Errorf("expected error %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "index.html", want: "/index.html"},
		{input: "/index.html", want: "/index.html"},
		{input: "//index.html", want: "/index.html"},
		{input: "", want: "/"},
	}

	for _, test := range tests {
		if got := NormalizePath(test.input); got != test.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}
