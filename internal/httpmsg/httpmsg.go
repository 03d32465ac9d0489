// Package httpmsg implements the HTTP/1.1 request-compose / response-parse
// codec shared by the final request and every intermediate CONNECT tunnel.
package httpmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tunnelstack/httpss/internal/endpoint"
	"github.com/tunnelstack/httpss/internal/xerrors"
)

// Methods this library knows how to compose/validate.
const (
	MethodConnect = "CONNECT"
	MethodDelete  = "DELETE"
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodOptions = "OPTIONS"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodTrace   = "TRACE"
)

var supportedMethods = map[string]bool{
	MethodConnect: true, MethodDelete: true, MethodGet: true, MethodHead: true,
	MethodOptions: true, MethodPost: true, MethodPut: true, MethodTrace: true,
}

// Header is an ordered, case-sensitive list of header fields, preserving
// insertion order for Compose.
type Header []HeaderField

// HeaderField is one Name/Value pair.
type HeaderField struct {
	Name  string
	Value string
}

// Get returns the first value for name (case-sensitive), or "" if absent.
func (h Header) Get(name string) (string, bool) {
	for _, f := range h {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Add appends a field, preserving any existing field with the same name.
func (h Header) Add(name, value string) Header {
	return append(h, HeaderField{Name: name, Value: value})
}

// Request is the in-memory representation of an HTTP/1.1 request, composed
// either for the final origin request or for an intermediate CONNECT.
type Request struct {
	Method  string
	URL     *url.URL
	Headers Header
	Body    []byte
	// Options carries the request-target when it differs from URL.Path —
	// mandatory for CONNECT (authority-form "host:port") and OPTIONS
	// (origin-form "*" or otherwise).
	Options *string
}

// Validate enforces the §3 invariants independent of composing.
func (r Request) Validate() error {
	if !supportedMethods[r.Method] {
		return xerrors.NewInvalidRequest("unsupported method: " + r.Method)
	}
	if r.URL != nil && r.URL.Scheme == "file" {
		return xerrors.NewInvalidRequest("file URLs are not supported")
	}
	if (r.Method == MethodConnect || r.Method == MethodOptions) && r.Options == nil {
		return xerrors.NewInvalidRequest(r.Method + " requires a non-nil request-target override")
	}
	if (r.Method == MethodConnect || r.Method == MethodHead) && len(r.Body) != 0 {
		return xerrors.NewInvalidRequest(r.Method + " must not carry a body")
	}
	return nil
}

// Compose renders r as HTTP/1.1 wire bytes, injecting a Host header from
// r.URL and a Content-Length header from r.Body when the caller hasn't
// already supplied one.
func Compose(r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	target := ""
	if r.Options != nil {
		target = *r.Options
	} else if r.URL != nil {
		target = r.URL.Path
	}

	headers := r.Headers
	if _, ok := headers.Get("Host"); !ok && r.URL != nil {
		headers = headers.Add("Host", r.URL.Host)
	}
	if len(r.Body) > 0 {
		if _, ok := headers.Get("Content-Length"); !ok {
			headers = headers.Add("Content-Length", strconv.Itoa(len(r.Body)))
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", r.Method, target)
	for _, f := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.Name, f.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)

	return buf.Bytes(), nil
}

// NewConnect builds the CONNECT request used to establish a tunnel to
// target through proxy.
func NewConnect(target, proxy endpoint.Endpoint, extra Header) Request {
	opts := target.String()
	proxyURL := &url.URL{Scheme: "https", Host: proxy.Host()}
	return Request{
		Method:  MethodConnect,
		URL:     proxyURL,
		Headers: extra,
		Options: &opts,
	}
}

// Response is the parsed HTTP/1.x response: status line, headers, and an
// optional body treated as a single in-memory blob (Non-goal: no
// streaming, no chunked decoding).
type Response struct {
	Status  int
	Reason  string
	Headers Header
	Body    []byte
}

// Category classifies a status code by its leading digit.
type Category string

const (
	CategoryInformational Category = "informal"
	CategorySuccess       Category = "success"
	CategoryRedirection   Category = "redirection"
	CategoryClientError   Category = "clientError"
	CategoryServerError   Category = "serverError"
)

// CategoryOf returns the Category for a status code in [100, 599].
func CategoryOf(status int) Category {
	switch {
	case status >= 100 && status < 200:
		return CategoryInformational
	case status >= 200 && status < 300:
		return CategorySuccess
	case status >= 300 && status < 400:
		return CategoryRedirection
	case status >= 400 && status < 500:
		return CategoryClientError
	default:
		return CategoryServerError
	}
}

// ParseOptions tunes a handful of documented quirks in Parse.
type ParseOptions struct {
	// Compat200OnNonNumericStatus reproduces a quirk of the platform HTTP
	// parser some proxies are built on: a non-numeric status token is
	// accepted as if it were 200. Default false: reject non-numeric status
	// tokens outright.
	Compat200OnNonNumericStatus bool
}

// Parse decodes an HTTP/1.x response. Body, if any, is the raw remainder
// of b after the header block — no chunked-transfer decoding is performed
// (Non-goal).
func Parse(b []byte, opts ParseOptions) (Response, error) {
	r := bufio.NewReader(bytes.NewReader(b))

	statusLine, err := readCRLFLine(r)
	if err != nil {
		return Response{}, xerrors.NewInvalidResponse("missing or incomplete status line", err)
	}

	resp, err := parseStatusLine(statusLine, opts)
	if err != nil {
		return Response{}, err
	}

	headers, err := parseHeaders(r)
	if err != nil {
		return Response{}, err
	}
	resp.Headers = headers

	body, _ := readAllRemaining(r)
	resp.Body = body

	return resp, nil
}

func readCRLFLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseStatusLine(line string, opts ParseOptions) (Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return Response{}, xerrors.NewInvalidResponse("malformed status line: "+line, nil)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		if !opts.Compat200OnNonNumericStatus {
			return Response{}, xerrors.NewInvalidResponse("non-numeric status code: "+parts[1], err)
		}
		code = 200
	}
	if code < 100 || code > 599 {
		return Response{}, xerrors.NewInvalidResponse(fmt.Sprintf("status code %d out of range", code), nil)
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	return Response{Status: code, Reason: reason}, nil
}

func parseHeaders(r *bufio.Reader) (Header, error) {
	var headers Header
	for {
		line, err := readCRLFLine(r)
		if err != nil {
			return nil, xerrors.NewInvalidResponse("incomplete header block", err)
		}
		if line == "" {
			return headers, nil
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, xerrors.NewInvalidResponse("malformed header line: "+line, nil)
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers = headers.Add(name, value)
	}
}

func readAllRemaining(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	return buf.Bytes(), err
}
