package pool

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/pippellia-btc/rely"
)

var ctx = context.Background()

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		relays []string
		want   []string
	}{
		{
			name:   "scheme added and duplicates collapse",
			relays: []string{"relay.damus.io", "wss://relay.damus.io", "wss://relay.damus.io/"},
			want:   []string{"wss://relay.damus.io"},
		},
		{
			name:   "invalid URLs dropped",
			relays: []string{"not a url at all", ""},
			want:   []string{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Normalize(test.relays)
			if len(got) == 0 && len(test.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestQueryUntilEOSE(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	e1 := signedEvent(t, sk, 15128, nostr.Tags{{"path", "/index.html", hash1}}, "")
	e2 := signedEvent(t, sk, 15128, nostr.Tags{{"path", "/index.html", hash2}}, "")

	url := startRelay(t, e1, e2)

	pool := New(ctx, NewConfig())
	results := pool.Query(ctx, []string{url}, nostr.Filter{
		Kinds:   []int{15128},
		Authors: []string{pk},
	})

	if len(results) != 2 {
		t.Fatalf("got %d events, want 2", len(results))
	}
}

func TestQueryDeduplicates(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	event := signedEvent(t, sk, 15128, nostr.Tags{{"path", "/index.html", hash1}}, "")

	url1 := startRelay(t, event)
	url2 := startRelay(t, event)

	pool := New(ctx, NewConfig())
	results := pool.Query(ctx, []string{url1, url2}, nostr.Filter{
		Kinds:   []int{15128},
		Authors: []string{pk},
	})

	if len(results) != 1 {
		t.Fatalf("got %d events, want 1", len(results))
	}
	if results[0].ID != event.ID {
		t.Errorf("got event %s, want %s", results[0].ID, event.ID)
	}
}

func TestQueryDeadlineWithoutEOSE(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	event := signedEvent(t, sk, 15128, nostr.Tags{{"path", "/index.html", hash1}}, "")
	url := startSilentRelay(t, event)

	config := NewConfig()
	config.RequestTimeout = 500 * time.Millisecond

	pool := New(ctx, config)

	start := time.Now()
	results := pool.Query(ctx, []string{url}, nostr.Filter{
		Kinds:   []int{15128},
		Authors: []string{pk},
	})
	elapsed := time.Since(start)

	if len(results) != 1 {
		t.Fatalf("got %d events, want 1", len(results))
	}
	if elapsed > 3*time.Second {
		t.Errorf("query took %v, the deadline did not fire", elapsed)
	}
}

func TestPublish(t *testing.T) {
	received := make(chan *nostr.Event, 1)
	url := startAcceptingRelay(t, received)

	sk := nostr.GeneratePrivateKey()
	event := signedEvent(t, sk, 1, nil, "hello")

	config := NewConfig()
	config.RequestTimeout = 2 * time.Second

	pool := New(ctx, config)
	results := pool.Publish(ctx, []string{url, "ws://127.0.0.1:1"}, event)

	if err := results[url]; err != nil {
		t.Errorf("expected no error for %s, got %v", url, err)
	}
	if err := results["ws://127.0.0.1:1"]; err == nil {
		t.Errorf("expected an error for the unreachable relay, got nil")
	}

	select {
	case got := <-received:
		if got.ID != event.ID {
			t.Errorf("relay received event %s, want %s", got.ID, event.ID)
		}
	case <-time.After(2 * time.Second):
		t.Errorf("relay never received the event")
	}
}

// ========================== TEST FIXTURES ==========================

const (
	hash1 = "1111111111111111111111111111111111111111111111111111111111111111"
	hash2 = "2222222222222222222222222222222222222222222222222222222222222222"
)

func signedEvent(t *testing.T, sk string, kind int, tags nostr.Tags, content string) nostr.Event {
	t.Helper()

	if tags == nil {
		tags = nostr.Tags{}
	}
	event := nostr.Event{Kind: kind, CreatedAt: nostr.Now(), Tags: tags, Content: content}
	if err := event.Sign(sk); err != nil {
		t.Fatalf("failed to sign event: %v", err)
	}
	return event
}

// startRelay starts an in-process relay that answers any REQ with the given
// events, followed by EOSE. It returns the relay URL.
func startRelay(t *testing.T, events ...nostr.Event) string {
	t.Helper()

	relay := rely.NewRelay()
	relay.On.Event = func(c rely.Client, e *nostr.Event) error { return nil }
	relay.On.Req = func(ctx context.Context, c rely.Client, id string, f nostr.Filters) ([]nostr.Event, error) {
		return events, nil
	}

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	go func() {
		if err := relay.StartAndServe(ctx, addr); err != nil {
			t.Logf("relay stopped: %v", err)
		}
	}()

	url := "ws://" + addr
	waitReady(t, url)
	return url
}

// startAcceptingRelay starts an in-process relay that accepts every published
// event and forwards it to the received channel.
func startAcceptingRelay(t *testing.T, received chan *nostr.Event) string {
	t.Helper()

	relay := rely.NewRelay()
	relay.On.Event = func(c rely.Client, e *nostr.Event) error {
		select {
		case received <- e:
		default:
		}
		return nil
	}
	relay.On.Req = func(ctx context.Context, c rely.Client, id string, f nostr.Filters) ([]nostr.Event, error) {
		return nil, nil
	}

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	go func() {
		if err := relay.StartAndServe(ctx, addr); err != nil {
			t.Logf("relay stopped: %v", err)
		}
	}()

	url := "ws://" + addr
	waitReady(t, url)
	return url
}

// startSilentRelay starts a raw websocket relay that answers a REQ with one
// EVENT and then goes silent, never sending EOSE. It exercises the deadline
// path of the pool.
func startSilentRelay(t *testing.T, event nostr.Event) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame []json.RawMessage
			if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
				continue
			}

			var label string
			if err := json.Unmarshal(frame[0], &label); err != nil || label != "REQ" {
				continue
			}

			var subID string
			if err := json.Unmarshal(frame[1], &subID); err != nil {
				continue
			}

			reply, err := json.Marshal([]any{"EVENT", subID, event})
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &http.Server{Handler: handler}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })

	return "ws://" + listener.Addr().String()
}

func freeAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().String()
}

// waitReady blocks until the relay accepts websocket connections.
func waitReady(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := nostr.RelayConnect(ctx, url)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("relay at %s never became ready", url)
}
