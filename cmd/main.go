package main

import (
	"context"
	"log/slog"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/nsyte/gateway/pkg/blobs"
	"github.com/nsyte/gateway/pkg/cache"
	"github.com/nsyte/gateway/pkg/config"
	"github.com/nsyte/gateway/pkg/gateway"
	"github.com/nsyte/gateway/pkg/hosts"
	"github.com/nsyte/gateway/pkg/pool"
	"github.com/nsyte/gateway/pkg/rate"
	"github.com/nsyte/gateway/pkg/resolver"
	"github.com/nsyte/gateway/pkg/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := slog.Default()
	logger.Info("-------------------gateway startup-------------------")
	defer logger.Info("-------------------gateway shutdown-------------------")

	// Step 1.
	// Initialize the relay pool and the event store
	relayPool := pool.New(ctx, config.Pool)
	eventStore := store.New()

	// Step 2.
	// Initialize the resolver, the blob downloader and the tiered cache
	siteResolver := resolver.New(relayPool, eventStore, config.Resolver)
	downloader := blobs.NewDownloader(config.Blobs)

	siteCache, err := cache.New(config.Cache)
	if err != nil {
		panic(err)
	}

	// Step 3.
	// Initialize the rate limiter and the optional hosts registry
	limiter := rate.NewLimiter(config.Rate)

	var registry *hosts.Registry
	if config.Hosts.File != "" {
		registry, err = hosts.New(config.Hosts, logger)
		if err != nil {
			panic(err)
		}
		defer registry.Close()
	}

	// Step 4.
	// Setup the gateway by passing dependencies
	gateway, err := gateway.Setup(
		config.Gateway,
		siteResolver,
		downloader,
		siteCache,
		registry,
		limiter,
		logger,
	)
	if err != nil {
		panic(err)
	}

	// Step 5.
	// Run the gateway and open the browser on the target site
	exit := make(chan error, 1)
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()
		address := "localhost:" + config.Gateway.Port
		if err := gateway.StartAndServe(ctx, address); err != nil {
			exit <- err
		}
	}()

	openBrowser(config.Gateway, logger)

	select {
	case <-ctx.Done():
		wg.Wait()
		return

	case err := <-exit:
		panic(err)
	}
}

// openBrowser opens the target site in the default browser, unless
// disabled or no target site is configured.
func openBrowser(config gateway.Config, logger *slog.Logger) {
	if config.NoOpen {
		return
	}

	target, ok := config.Target()
	if !ok {
		logger.Info("no target site configured, visit http://<npub>.localhost:" + config.Port)
		return
	}

	url := "http://" + target.String() + ".localhost:" + config.Port

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		logger.Info("failed to open the browser", "url", url, "error", err)
	}
}
