package tunnel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/tunnelstack/httpss/internal/config"
	"github.com/tunnelstack/httpss/internal/endpoint"
	"github.com/tunnelstack/httpss/internal/httpmsg"
)

func selfSignedCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

func listenerEndpoint(t *testing.T, ln net.Listener) endpoint.Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	ep, err := endpoint.New(host, uint16(port))
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	return ep
}

// readUntilHeadersEnd reads from conn until it has seen a blank line
// terminating an HTTP header block, returning everything read so far.
func readUntilHeadersEnd(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if containsHeaderTerminator(buf) {
				return buf, nil
			}
		}
		if err != nil {
			return buf, err
		}
	}
}

func containsHeaderTerminator(b []byte) bool {
	for i := 0; i+3 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' && b[i+2] == '\r' && b[i+3] == '\n' {
			return true
		}
	}
	return false
}

// runOriginServer accepts exactly one TLS connection, waits for a request,
// and replies with a fixed 200 response carrying body "hello".
func runOriginServer(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	if _, err := readUntilHeadersEnd(conn); err != nil {
		return
	}
	conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
}

// runProxyServer accepts exactly one TLS connection, answers the CONNECT
// with 200, then relays raw bytes between the client and originAddr — the
// client performs its own TLS handshake with the origin through this
// relay, the nested-tunnel shape this whole package exists to drive.
func runProxyServer(t *testing.T, ln net.Listener, originAddr string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	if _, err := readUntilHeadersEnd(conn); err != nil {
		return
	}
	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	upstream, err := net.Dial("tcp", originAddr)
	if err != nil {
		return
	}
	defer upstream.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(upstream, conn); done <- struct{}{} }()
	go func() { io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
	<-done
}

func TestOrchestratorIssueThroughOneProxy(t *testing.T) {
	cert, pool := selfSignedCert(t)
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	originLn, err := tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	if err != nil {
		t.Fatalf("origin listen: %v", err)
	}
	defer originLn.Close()

	proxyLn, err := tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	if err != nil {
		t.Fatalf("proxy listen: %v", err)
	}
	defer proxyLn.Close()

	originEp := listenerEndpoint(t, originLn)
	proxyEp := listenerEndpoint(t, proxyLn)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		runOriginServer(t, originLn)
	}()
	go runProxyServer(t, proxyLn, originLn.Addr().String())

	orch, err := New([]endpoint.Endpoint{proxyEp, originEp}, config.Options{RootCAs: pool})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := httpmsg.Request{
		Method: httpmsg.MethodGet,
		URL:    &url.URL{Scheme: "https", Host: originEp.String(), Path: "/"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := orch.Issue(ctx, req)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("Status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("Body = %q, want %q", resp.Body, "hello")
	}

	<-serverDone
}

func TestOrchestratorRejectsConcurrentIssue(t *testing.T) {
	ep, err := endpoint.New("127.0.0.1", 1)
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	orch, err := New([]endpoint.Endpoint{ep}, config.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	orch.mu.Lock()
	orch.inFlight = true
	orch.mu.Unlock()

	_, err = orch.Issue(context.Background(), httpmsg.Request{Method: httpmsg.MethodGet, URL: &url.URL{Host: "example.com", Path: "/"}})
	if err == nil {
		t.Fatal("expected error for concurrent Issue")
	}
}

func TestNewRejectsEmptyTargets(t *testing.T) {
	if _, err := New(nil, config.Options{}); err == nil {
		t.Fatal("expected error for empty targets")
	}
}
