package gateway

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
)

// updatesEndpoint is where injected reload scripts poll for site changes.
const updatesEndpoint = "/_nsyte/check-updates"

// reloadScript is injected into HTML responses. It polls the update
// endpoint and reloads the page when the site changed after page load.
var reloadScript = []byte(`<script>
(function() {
	var loadedAt = Date.now();
	setInterval(function() {
		fetch("` + updatesEndpoint + `?path=" + encodeURIComponent(location.pathname) + "&since=" + loadedAt)
			.then(function(res) { return res.json(); })
			.then(function(data) { if (data.hasUpdate) location.reload(); })
			.catch(function() {});
	}, 5000);
})();
</script>`)

// injectReloadScript adds the reload script to an HTML document, right
// before the closing body tag when there is one, before the closing html
// tag otherwise, and at the end of the document as a last resort.
// Documents that already carry the script are returned unchanged.
func injectReloadScript(body []byte) []byte {
	if bytes.Contains(body, []byte(updatesEndpoint)) {
		return body
	}

	lower := bytes.ToLower(body)
	for _, tag := range []string{"</body>", "</html>"} {
		if at := bytes.LastIndex(lower, []byte(tag)); at >= 0 {
			return slices.Concat(body[:at], reloadScript, body[at:])
		}
	}
	return slices.Concat(body, reloadScript)
}

// contentTypes pins the types of common web extensions, since the ones in
// the system mime tables vary across machines.
var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".md":    "text/markdown; charset=utf-8",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml",
	".pdf":   "application/pdf",
	".wasm":  "application/wasm",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
}

func contentTypeFor(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if contentType, ok := contentTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

// etagMatches reports whether the If-None-Match header covers the etag.
func etagMatches(header, etag string) bool {
	for _, raw := range strings.Split(header, ",") {
		tag := strings.TrimPrefix(strings.TrimSpace(raw), "W/")
		if tag == etag || tag == "*" {
			return true
		}
	}
	return false
}

// respond writes the body of a resolved candidate with caching headers.
// HTML pages get the reload script, conditional requests get a 304, and
// 404-page candidates keep their not-found status.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, c candidate, data []byte) {
	etag := `"` + c.hash + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if !c.notFound && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := contentTypeFor(c.logical())
	if !c.notFound && strings.HasPrefix(contentType, "text/html") {
		data = injectReloadScript(data)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	if c.notFound {
		w.WriteHeader(http.StatusNotFound)
	}

	if r.Method != http.MethodHead {
		w.Write(data)
	}
}

const loadingPage = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Loading site</title>
</head>
<body>
	<p>Resolving the site from relays, this page refreshes by itself.</p>
</body>
</html>`

// respondLoading tells the client the site is being resolved and to
// come back in a moment.
func (s *Server) respondLoading(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Refresh", "2")
	w.Write([]byte(loadingPage))
}

const emptySitePage = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Empty site</title>
</head>
<body>
	<p>This site exists but lists no files yet.</p>
</body>
</html>`

// respondEmptySite renders the placeholder for a site whose manifest lists
// no files. The reload script is injected so the page refreshes itself once
// files are published.
func (s *Server) respondEmptySite(w http.ResponseWriter, r *http.Request) {
	body := injectReloadScript([]byte(emptySitePage))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	if r.Method != http.MethodHead {
		w.Write(body)
	}
}

const notFoundPage = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>404</title>
</head>
<body>
	<h1>404</h1>
	<p>Nothing here.</p>
</body>
</html>`

// respondNotFound writes the built-in 404, as HTML when the client
// accepts it and as plain text otherwise.
func (s *Server) respondNotFound(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Error(w, "404 page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	if r.Method != http.MethodHead {
		w.Write([]byte(notFoundPage))
	}
}
