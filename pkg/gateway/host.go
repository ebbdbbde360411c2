package gateway

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/nsyte/gateway/pkg/events"
)

// hostname returns the lowercase hostname of the request, without the port.
func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// isBare reports whether the host selects no site by itself, in which case
// the request is redirected to the configured target site.
func isBare(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "0.0.0.0", "::1":
		return true
	}
	return false
}

// parseSiteHost derives the site identity from the hostname:
// "npub1abc...xyz.localhost" is the root site of that pubkey, while
// "blog.npub1abc...xyz.localhost" is its named site "blog".
func parseSiteHost(host string) (events.Site, error) {
	labels := strings.Split(host, ".")

	if strings.HasPrefix(labels[0], "npub1") {
		return events.NewSite(labels[0], "")
	}

	if len(labels) >= 3 && strings.HasPrefix(labels[1], "npub1") {
		return events.NewSite(labels[1], labels[0])
	}

	return events.Site{}, fmt.Errorf("no site in hostname %q", host)
}

// redirectToTarget sends the client to the configured target site,
// preserving the request path.
func (s *Server) redirectToTarget(w http.ResponseWriter, r *http.Request) {
	target, ok := s.config.Target()
	if !ok {
		http.Error(w, "no target site is configured, visit http://<npub>."+hostname(r)+" instead", http.StatusNotFound)
		return
	}

	location := fmt.Sprintf("http://%s.%s%s", target.String(), r.Host, r.URL.RequestURI())
	w.Header().Set("Cache-Control", "no-cache")
	http.Redirect(w, r, location, http.StatusFound)
}
