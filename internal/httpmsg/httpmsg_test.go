package httpmsg

import (
	"net/url"
	"strings"
	"testing"

	"github.com/tunnelstack/httpss/internal/endpoint"
)

// Compose only guarantees the composed bytes contain "Host: <url.host>\r\n"
// and start with the request line, not any exact header position, so these
// tests assert containment rather than an exact byte-for-byte layout.

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestComposeHead(t *testing.T) {
	req := Request{
		Method: MethodHead,
		URL:    mustURL(t, "https://example.com/"),
		Headers: Header{
			{Name: "X-Test", Value: "foobar"},
			{Name: "X-Foo", Value: "Bar"},
		},
	}
	out, err := Compose(req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "HEAD / HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", s)
	}
	if !strings.Contains(s, "Host: example.com\r\n") {
		t.Fatalf("missing injected Host header: %q", s)
	}
	if !strings.Contains(s, "X-Test: foobar\r\n") || !strings.Contains(s, "X-Foo: Bar\r\n") {
		t.Fatalf("missing caller headers: %q", s)
	}
	if !strings.HasSuffix(s, "\r\n\r\n") {
		t.Fatalf("missing terminating blank line: %q", s)
	}
}

func TestComposeConnect(t *testing.T) {
	target, _ := endpoint.New("example.com", 80)
	proxy, _ := endpoint.New("localhost", 8888)
	req := NewConnect(target, proxy, Header{
		{Name: "X-Test", Value: "foobar"},
		{Name: "X-Foo", Value: "Bar"},
	})

	out, err := Compose(req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "CONNECT example.com:80 HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", s)
	}
	if !strings.Contains(s, "Host: localhost\r\n") {
		t.Fatalf("missing proxy Host header: %q", s)
	}
}

func TestComposeInjectsContentLength(t *testing.T) {
	req := Request{
		Method: MethodPost,
		URL:    mustURL(t, "https://example.com/submit"),
		Body:   []byte("hello world"),
	}
	out, err := Compose(req)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(string(out), "Content-Length: 11\r\n") {
		t.Fatalf("missing injected Content-Length: %q", out)
	}
}

func TestComposeRejectsConnectWithoutOptions(t *testing.T) {
	req := Request{Method: MethodConnect, URL: mustURL(t, "https://proxy.example/")}
	if _, err := Compose(req); err == nil {
		t.Fatal("expected error for CONNECT without Options")
	}
}

func TestComposeRejectsHeadWithBody(t *testing.T) {
	opts := "/"
	req := Request{Method: MethodHead, URL: mustURL(t, "https://example.com/"), Body: []byte("x"), Options: &opts}
	if _, err := Compose(req); err == nil {
		t.Fatal("expected error for HEAD with body")
	}
}

func TestParseSuccessfulConnectResponse(t *testing.T) {
	raw := "HTTP/1.0 200 Connection Established\r\nProxy-agent: Apache\r\n\r\n"
	resp, err := Parse([]byte(raw), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if v, ok := resp.Headers.Get("Proxy-agent"); !ok || v != "Apache" {
		t.Fatalf("Proxy-agent header = %q, %v", v, ok)
	}
	if len(resp.Body) != 0 {
		t.Fatalf("expected empty body, got %q", resp.Body)
	}
}

func TestParseSuccessfulPostResponse(t *testing.T) {
	raw := "HTTP/1.0 200 OK\r\nServer: BaseHTTP/0.6 Python/3.6.0\r\nDate: Wed, 25 Jan 2017 13:00:00 GMT\r\n\r\n"
	resp, err := Parse([]byte(raw), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.Status != 200 || len(resp.Headers) != 2 || len(resp.Body) != 0 {
		t.Fatalf("unexpected parse result: %+v", resp)
	}
}

func TestParseRejectsOutOfRangeStatus(t *testing.T) {
	raw := "HTTP/1.1 999 Bogus\r\n\r\n"
	if _, err := Parse([]byte(raw), ParseOptions{}); err == nil {
		t.Fatal("expected error for out-of-range status")
	}
}

func TestParseRejectsIncompleteHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Partial: yes\r\n"
	if _, err := Parse([]byte(raw), ParseOptions{}); err == nil {
		t.Fatal("expected error for incomplete header block")
	}
}

func TestParseNonNumericStatusDefaultRejects(t *testing.T) {
	raw := "HTTP/1.1 OK OK\r\n\r\n"
	if _, err := Parse([]byte(raw), ParseOptions{}); err == nil {
		t.Fatal("expected error for non-numeric status with compat switch off")
	}
}

func TestParseNonNumericStatusCompatSwitch(t *testing.T) {
	raw := "HTTP/1.1 OK OK\r\n\r\n"
	resp, err := Parse([]byte(raw), ParseOptions{Compat200OnNonNumericStatus: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := map[int]Category{
		100: CategoryInformational,
		200: CategorySuccess,
		301: CategoryRedirection,
		404: CategoryClientError,
		500: CategoryServerError,
	}
	for status, want := range tests {
		if got := CategoryOf(status); got != want {
			t.Errorf("CategoryOf(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestParseResponseBodyRoundTrip(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	resp, err := Parse([]byte(raw), ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("body = %q, want %q", resp.Body, "hello")
	}
}
