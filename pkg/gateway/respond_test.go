package gateway

import (
	"bytes"
	"strings"
	"testing"
)

func TestInjectReloadScript(t *testing.T) {
	script := string(reloadScript)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "before closing body tag",
			body: "<html><body><h1>hi</h1></body></html>",
			want: "<html><body><h1>hi</h1>" + script + "</body></html>",
		},
		{
			name: "uppercase closing body tag",
			body: "<HTML><BODY>hi</BODY></HTML>",
			want: "<HTML><BODY>hi" + script + "</BODY></HTML>",
		},
		{
			name: "before closing html tag when body is missing",
			body: "<html>bare</html>",
			want: "<html>bare" + script + "</html>",
		},
		{
			name: "appended when no closing tags exist",
			body: "<p>fragment",
			want: "<p>fragment" + script,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := injectReloadScript([]byte(test.body))
			if string(got) != test.want {
				t.Errorf("expected %q, got %q", test.want, got)
			}

			// injecting again must be a no-op
			again := injectReloadScript(got)
			if !bytes.Equal(again, got) {
				t.Error("expected second injection to leave the document unchanged")
			}
		})
	}
}

func TestInjectReloadScriptDoesNotAlias(t *testing.T) {
	body := []byte("<html><body>hi</body></html>")
	original := string(body)

	injectReloadScript(body)
	if string(body) != original {
		t.Error("expected the input document to stay unchanged")
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{`"abc"`, `"abc"`, true},
		{`"xyz", "abc"`, `"abc"`, true},
		{`W/"abc"`, `"abc"`, true},
		{`*`, `"abc"`, true},
		{``, `"abc"`, false},
		{`"xyz"`, `"abc"`, false},
		{`abc`, `"abc"`, false}, // unquoted never matches
	}

	for _, test := range tests {
		if got := etagMatches(test.header, test.etag); got != test.want {
			t.Errorf("etagMatches(%q, %q): expected %v, got %v", test.header, test.etag, test.want, got)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/index.html", "text/html; charset=utf-8"},
		{"/app.js", "application/javascript"},
		{"/style.css", "text/css; charset=utf-8"},
		{"/IMG.PNG", "image/png"},
		{"/font.woff2", "font/woff2"},
		{"/data.unknownext", "application/octet-stream"},
		{"/no-extension", "application/octet-stream"},
	}

	for _, test := range tests {
		if got := contentTypeFor(test.path); got != test.want {
			t.Errorf("contentTypeFor(%q): expected %q, got %q", test.path, test.want, got)
		}
	}
}

func TestReloadScriptPollsEndpoint(t *testing.T) {
	if !strings.Contains(string(reloadScript), updatesEndpoint) {
		t.Error("expected the reload script to poll the updates endpoint")
	}
}
