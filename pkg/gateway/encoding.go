package gateway

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// acceptsEncoding reports whether the Accept-Encoding header admits the
// given coding. The header is parsed conservatively: an exact token match
// decides, the "*" wildcard covers the rest, and q=0 disables a coding.
func acceptsEncoding(header, coding string) bool {
	wildcard := false

	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		q := 1.0
		for _, param := range strings.Split(params, ";") {
			key, value, _ := strings.Cut(strings.TrimSpace(param), "=")
			if !strings.EqualFold(strings.TrimSpace(key), "q") {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				q = parsed
			}
		}

		if strings.EqualFold(name, coding) {
			return q > 0
		}
		if name == "*" {
			wildcard = q > 0
		}
	}
	return wildcard
}

// decompress reverses the named compression of a stored variant.
func decompress(compression string, data []byte) ([]byte, error) {
	switch compression {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))

	case "gz":
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	}
	return nil, fmt.Errorf("unknown compression %q", compression)
}
