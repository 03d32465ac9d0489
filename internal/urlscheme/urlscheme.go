// Package urlscheme decodes the synthetic httpss/httpsss/httpssss schemes
// into an ordered proxy chain plus an inner target URL.
package urlscheme

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tunnelstack/httpss/internal/endpoint"
	"github.com/tunnelstack/httpss/internal/xerrors"
)

// ErrNotOurs is returned when the input is not an absolute URL with one of
// the recognized synthetic schemes. Callers (e.g. a URL-protocol-handler
// adapter) should treat this as "bypass", not as a parse failure.
var ErrNotOurs = errors.New("urlscheme: not a synthetic httpss-family scheme")

var schemeRe = regexp.MustCompile(`(?i)^http(s{2,4})$`)

// ParsedChain is the result of decoding a synthetic-scheme URL.
type ParsedChain struct {
	Proxies  []endpoint.Endpoint
	InnerURL *url.URL
}

// Parse decodes rawURL into a proxy chain and inner target. Returns
// ErrNotOurs for any input that is not an absolute URL with a recognized
// scheme (distinct from a structured *xerrors.Error for a scheme we do
// recognize but fail to decode).
func Parse(rawURL string) (*ParsedChain, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil, ErrNotOurs
	}

	m := schemeRe.FindStringSubmatch(u.Scheme)
	if m == nil {
		return nil, ErrNotOurs
	}
	proxyCount := len(m[1]) - 1

	// Reconstruct "authority/path..." verbatim from the original string so
	// that path segments are split exactly as written, not re-encoded by
	// net/url.
	rest := rawURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}

	segments := strings.Split(rest, "/")
	if len(segments) < proxyCount+1 {
		return nil, xerrors.NewTooFewProxies()
	}

	proxies := make([]endpoint.Endpoint, 0, proxyCount)
	for i := 0; i < proxyCount; i++ {
		ep, err := parseProxyAuthority(segments[i])
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, ep)
	}

	innerRaw := strings.Join(segments[proxyCount:], "/")
	innerURL, err := url.Parse("https://" + innerRaw)
	if err != nil {
		return nil, xerrors.NewInvalidResponse("could not parse inner URL", err)
	}
	if innerURL.Path == "" {
		innerURL.Path = "/"
	}

	return &ParsedChain{Proxies: proxies, InnerURL: innerURL}, nil
}

// parseProxyAuthority decodes one "host[:port]" authority token, defaulting
// the port to 443 and falling back to treating the whole token as the host
// when the trailing segment after the last colon isn't a valid port
// integer.
func parseProxyAuthority(token string) (endpoint.Endpoint, error) {
	if strings.HasPrefix(token, "[") {
		end := strings.Index(token, "]")
		if end < 0 {
			return endpoint.Endpoint{}, xerrors.NewIncorrectProxySpecification(token)
		}
		host := token[:end+1]
		rest := token[end+1:]
		port := 443
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return endpoint.Endpoint{}, xerrors.NewIncorrectProxySpecification(token)
			}
			p, err := strconv.Atoi(rest[1:])
			if err != nil || p < 1 || p > 65535 {
				return endpoint.Endpoint{}, xerrors.NewIncorrectProxySpecification(token)
			}
			port = p
		}
		ep, err := endpoint.New(host, uint16(port))
		if err != nil {
			return endpoint.Endpoint{}, xerrors.NewIncorrectProxySpecification(token)
		}
		return ep, nil
	}

	host := token
	port := 443
	if idx := strings.LastIndex(token, ":"); idx >= 0 {
		if p, err := strconv.Atoi(token[idx+1:]); err == nil && p >= 1 && p <= 65535 {
			host = token[:idx]
			port = p
		}
		// else: non-numeric or out-of-range trailing segment, keep the
		// whole token (colon included) as the host.
	}

	ep, err := endpoint.New(host, uint16(port))
	if err != nil {
		return endpoint.Endpoint{}, xerrors.NewIncorrectProxySpecification(token)
	}
	return ep, nil
}
