// The gateway package is responsible for serving nostr static sites over HTTP.
// It exposes a [Setup] function to create a new gateway server with the given
// config and dependencies.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nsyte/gateway/pkg/blobs"
	"github.com/nsyte/gateway/pkg/cache"
	"github.com/nsyte/gateway/pkg/hosts"
	"github.com/nsyte/gateway/pkg/rate"
	"github.com/nsyte/gateway/pkg/resolver"
)

// shutdownTimeout is how long in-flight requests get to drain after the
// context is canceled.
const shutdownTimeout = 10 * time.Second

type Server struct {
	config Config

	resolver *resolver.Resolver
	blobs    *blobs.Downloader
	cache    *cache.Cache
	hosts    *hosts.Registry // optional, nil when no hosts file is configured
	watcher  *Watcher

	handler http.Handler
}

func Setup(
	config Config,
	resolver *resolver.Resolver,
	downloader *blobs.Downloader,
	cache *cache.Cache,
	registry *hosts.Registry,
	limiter rate.Limiter,
	logger *slog.Logger,
) (*Server, error) {

	if resolver == nil {
		return nil, errors.New("failed to setup gateway: resolver is required")
	}
	if downloader == nil {
		return nil, errors.New("failed to setup gateway: blob downloader is required")
	}
	if cache == nil {
		return nil, errors.New("failed to setup gateway: cache is required")
	}
	if logger == nil {
		return nil, errors.New("failed to setup gateway: logger is required")
	}

	server := &Server{
		config:   config,
		resolver: resolver,
		blobs:    downloader,
		cache:    cache,
		hosts:    registry,
		watcher:  NewWatcher(resolver, cache, logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(updatesEndpoint, server.handleCheckUpdates)
	mux.HandleFunc("/", server.handleSite)

	server.handler = rateLimit(limiter, mux)
	return server, nil
}

// Handler returns the HTTP handler of the gateway.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// StartAndServe runs the gateway on the given address until the context is
// canceled, then drains in-flight requests and stops the update watcher.
func (s *Server) StartAndServe(ctx context.Context, address string) error {
	httpServer := &http.Server{
		Addr:    address,
		Handler: s.handler,
	}

	exit := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			exit <- err
		}
	}()

	select {
	case err := <-exit:
		s.watcher.Close()
		return fmt.Errorf("failed to serve: %w", err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	s.watcher.Close()
	if err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	return nil
}

// rateLimit rejects clients that exhausted their token bucket.
// A site request can fan out into relay queries and blob downloads,
// while an update poll is answered from memory, so they are charged
// different costs.
func rateLimit(limiter rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := 5.0
		if r.URL.Path == updatesEndpoint {
			cost = 1.0
		}

		if !limiter.Allow(clientIP(r), cost) {
			http.Error(w, "rate-limited: slow down chief", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the IP of the client, or the whole remote
// address when it cannot be split into host and port.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
