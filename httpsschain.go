// Package httpsschain is the public entry point: it decodes a synthetic
// httpss/httpsss/httpssss URL into a proxy chain, drives a tunnel.Orchestrator
// through it, and hands back an ordinary *net/http.Response so callers can
// keep using the standard library's response idioms.
package httpsschain

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/tunnelstack/httpss/internal/config"
	"github.com/tunnelstack/httpss/internal/endpoint"
	"github.com/tunnelstack/httpss/internal/httpmsg"
	"github.com/tunnelstack/httpss/internal/urlscheme"
	"github.com/tunnelstack/httpss/tunnel"
)

// ErrNotOurs re-exports urlscheme.ErrNotOurs: a caller chaining httpsschain
// behind some other URL-protocol dispatcher should treat this as "not mine,
// try the next handler" rather than as a request failure.
var ErrNotOurs = urlscheme.ErrNotOurs

// Options configures every Orchestrator a Client builds. Identical to
// tunnel's config.Options; aliased so callers never need to import
// internal/config directly.
type Options = config.Options

// Client issues requests whose URL names a proxy chain via a synthetic
// scheme. The zero value is usable.
type Client struct {
	Options Options
}

// NewClient returns a Client configured by opts.
func NewClient(opts Options) *Client {
	return &Client{Options: opts}
}

// Do decodes req.URL, builds a one-shot Orchestrator for the chain it names,
// issues req over it, and returns the parsed response translated to
// *http.Response. Returns ErrNotOurs unchanged when req.URL isn't a
// recognized synthetic scheme, so callers can fall back to their own
// transport without treating it as an error.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	chain, err := urlscheme.Parse(req.URL.String())
	if err != nil {
		return nil, err
	}

	origin, err := originEndpoint(chain.InnerURL)
	if err != nil {
		return nil, err
	}
	targets := append(append([]endpoint.Endpoint{}, chain.Proxies...), origin)

	orch, err := tunnel.New(targets, c.Options)
	if err != nil {
		return nil, err
	}

	msgReq, err := toMessageRequest(req, chain.InnerURL)
	if err != nil {
		return nil, err
	}

	resp, err := orch.Issue(ctx, msgReq)
	if err != nil {
		return nil, err
	}

	return toHTTPResponse(resp, req), nil
}

// originEndpoint derives the final hop from the inner URL, defaulting the
// port the way a plain https client would when the authority carries none.
func originEndpoint(inner *url.URL) (endpoint.Endpoint, error) {
	host := inner.Hostname()
	portStr := inner.Port()
	port := 443
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return endpoint.Endpoint{}, err
		}
		port = p
	}
	return endpoint.New(host, uint16(port))
}

// toMessageRequest translates a *net/http.Request into the in-memory wire
// representation httpmsg.Compose expects, reading the body fully into
// memory to match Response.Body's single-blob treatment below — there is
// no streaming request/response body support.
func toMessageRequest(req *http.Request, inner *url.URL) (httpmsg.Request, error) {
	var body []byte
	if req.Body != nil {
		defer req.Body.Close()
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return httpmsg.Request{}, err
		}
		body = b
	}

	var headers httpmsg.Header
	for name, values := range req.Header {
		for _, v := range values {
			headers = headers.Add(name, v)
		}
	}

	target := inner.Path
	if inner.RawQuery != "" {
		target += "?" + inner.RawQuery
	}

	return httpmsg.Request{
		Method:  req.Method,
		URL:     inner,
		Headers: headers,
		Body:    body,
		Options: &target,
	}, nil
}

// toHTTPResponse wraps a parsed httpmsg.Response as a *net/http.Response so
// callers can keep using the standard library's io.ReadAll / resp.Header
// idioms, exactly the convenience rawhttp.go's type aliases give its
// callers.
func toHTTPResponse(resp httpmsg.Response, req *http.Request) *http.Response {
	header := make(http.Header, len(resp.Headers))
	for _, f := range resp.Headers {
		header[textproto.CanonicalMIMEHeaderKey(f.Name)] = append(header[textproto.CanonicalMIMEHeaderKey(f.Name)], f.Value)
	}

	return &http.Response{
		Status:        strconv.Itoa(resp.Status) + " " + resp.Reason,
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}
}
