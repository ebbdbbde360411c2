package gateway

import (
	"path"
	"strings"

	"github.com/nsyte/gateway/pkg/events"
)

// candidate is one manifest entry that can satisfy a request. Candidates are
// tried in order, falling through to the next on download or decompression
// failure.
type candidate struct {
	path        string // manifest path, e.g. "/index.html.br"
	hash        string
	compression string // "", "br" or "gz"
	notFound    bool   // a 404 page, served with status 404
}

// logical returns the candidate path without the compression suffix,
// which is the path the response content type is derived from.
func (c candidate) logical() string {
	switch c.compression {
	case "br":
		return strings.TrimSuffix(c.path, ".br")
	case "gz":
		return strings.TrimSuffix(c.path, ".gz")
	}
	return c.path
}

// rootPaths are tried in order when the request is for "/".
var rootPaths = []string{
	"/index.html",
	"/index.htm",
	"/README.md",
	"/docs/index.html",
	"/dist/index.html",
	"/public/index.html",
	"/build/index.html",
}

var rootNotFoundPaths = []string{"/404.html", "/docs/404.html"}

// buildCandidates resolves the request path against the manifest files,
// returning the entries to try in order of preference. Compressed variants
// the client can handle come before the plain file. Directory-looking paths
// fall back to their index files, and everything else falls back to the
// site's 404 page. An empty result means not even a 404 page exists.
func buildCandidates(requestPath string, files map[string]string, acceptEncoding string) []candidate {
	norm := events.NormalizePath(requestPath)
	br := acceptsEncoding(acceptEncoding, "br")
	gz := acceptsEncoding(acceptEncoding, "gzip")

	if norm == "/" {
		candidates := variantsOf(rootPaths, files, br, gz, false)
		if len(candidates) > 0 {
			return candidates
		}
		return variantsOf(rootNotFoundPaths, files, br, gz, true)
	}

	candidates := variantsOf([]string{norm}, files, br, gz, false)
	if len(candidates) == 0 && looksLikeDir(norm) {
		candidates = variantsOf(indexTargets(norm), files, br, gz, false)
	}
	if len(candidates) == 0 {
		candidates = variantsOf([]string{"/404.html"}, files, br, gz, true)
	}
	return candidates
}

// looksLikeDir reports whether the path can refer to a directory,
// meaning it ends with a slash or its last element has no extension.
func looksLikeDir(norm string) bool {
	return strings.HasSuffix(norm, "/") || path.Ext(norm) == ""
}

func indexTargets(norm string) []string {
	base := strings.TrimSuffix(norm, "/")
	return []string{
		base + "/index.html",
		base + "/index.htm",
		base + "/README.md",
	}
}

// variantsOf expands each target path into the manifest entries that exist
// for it, preferring brotli, then gzip, then the plain file.
func variantsOf(targets []string, files map[string]string, br, gz, notFound bool) []candidate {
	var candidates []candidate
	for _, target := range targets {
		if br {
			if hash, ok := files[target+".br"]; ok {
				candidates = append(candidates, candidate{path: target + ".br", hash: hash, compression: "br", notFound: notFound})
			}
		}
		if gz {
			if hash, ok := files[target+".gz"]; ok {
				candidates = append(candidates, candidate{path: target + ".gz", hash: hash, compression: "gz", notFound: notFound})
			}
		}
		if hash, ok := files[target]; ok {
			candidates = append(candidates, candidate{path: target, hash: hash, notFound: notFound})
		}
	}
	return candidates
}
