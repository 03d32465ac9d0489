// Package tlslayer implements one TLS session wrapped around a
// pairedstream.Stream. N nested tlslayer.Stream values, each wrapping the
// previous one's Stream, build the layered construction of HTTP-CONNECT
// tunnels this library exists for: layer k's ciphertext is layer k-1's
// plaintext payload.
package tlslayer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tunnelstack/httpss/internal/pairedstream"
	"github.com/tunnelstack/httpss/internal/pinning"
	"github.com/tunnelstack/httpss/internal/tlsprofile"
	"github.com/tunnelstack/httpss/internal/xerrors"
)

// pollInterval bounds how long connAdapter.Read waits between polling the
// wrapped stream for newly arrived bytes. Every read crypto/tls makes
// through the adapter goes through this poll, handshake records and
// application data alike (readPump keeps reading for the layer's whole
// lifetime).
const pollInterval = time.Millisecond

// Stream is a TLS session over a lower pairedstream.Stream. It implements
// pairedstream.Stream itself so stacks of arbitrary depth compose
// uniformly: tlslayer.New(tlslayer.New(rawStream)) tunnels one TLS session
// inside another.
type Stream struct {
	lower  pairedstream.Stream
	host   string
	pinner *pinning.Pinner
	loop   *pairedstream.EventLoop

	adapter *connAdapter
	conn    *tls.Conn

	mu      sync.Mutex
	pending bytes.Buffer
	closed  bool
	ended   bool
	err     error
}

// New returns a TLS client Stream that will, once Scheduled and Opened,
// perform the handshake for host (used as SNI) over lower, and honor
// pinner's pinning predicate (nil meaning "platform defaults"). rootCAs
// overrides the platform trust store when non-nil — for private-CA
// deployments, not a substitute for pinning (Go's own chain verification
// still runs against whichever pool is in effect before the pinner's own
// byte-exact comparison).
func New(lower pairedstream.Stream, host string, pinner *pinning.Pinner, rootCAs *x509.CertPool) *Stream {
	adapter := &connAdapter{lower: lower}
	cfg := tlsprofile.Base(host)
	if rootCAs != nil {
		cfg.RootCAs = rootCAs
	}
	if pinner != nil {
		cfg.VerifyConnection = pinner.VerifyConnection
	}
	return &Stream{
		lower:   lower,
		host:    host,
		pinner:  pinner,
		adapter: adapter,
		conn:    tls.Client(adapter, cfg),
	}
}

func (s *Stream) Schedule(loop *pairedstream.EventLoop) {
	s.loop = loop
}

// Open drives the handshake to completion (or error) on a dedicated
// goroutine rather than blocking the caller; completion is signaled
// through loop.Post(EventOpenCompleted) since nothing else observes this
// goroutine directly.
func (s *Stream) Open(ctx context.Context) error {
	go func() {
		if err := s.conn.HandshakeContext(ctx); err != nil {
			s.mu.Lock()
			s.err = xerrors.NewHandshakeFailed(s.host, err)
			s.mu.Unlock()
			if s.loop != nil {
				s.loop.Post(pairedstream.Event{Kind: pairedstream.EventErrorOccurred, Stream: s, Err: s.err})
			}
			return
		}
		if s.loop != nil {
			s.loop.Post(pairedstream.Event{Kind: pairedstream.EventOpenCompleted, Stream: s})
			s.loop.Post(pairedstream.Event{Kind: pairedstream.EventHasSpaceAvailable, Stream: s})
		}
		go s.readPump()
	}()
	return nil
}

// readPump decrypts continuously, buffering plaintext for Read, the same
// shape as pairedstream.RawStream's readPump one layer down.
func (s *Stream) readPump() {
	buf := make([]byte, 1<<20) // 1 MiB read chunks.
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending.Write(buf[:n])
			s.mu.Unlock()
			if s.loop != nil {
				s.loop.Post(pairedstream.Event{Kind: pairedstream.EventHasBytesAvailable, Stream: s})
			}
		}
		if err != nil {
			s.mu.Lock()
			if isBenignClose(err) {
				s.ended = true
			} else {
				s.err = xerrors.NewReadingFailed(s.host, err)
			}
			s.mu.Unlock()
			if s.loop != nil {
				if isBenignClose(err) {
					s.loop.Post(pairedstream.Event{Kind: pairedstream.EventEndEncountered, Stream: s})
				} else {
					s.loop.Post(pairedstream.Event{Kind: pairedstream.EventErrorOccurred, Stream: s, Err: s.err})
				}
			}
			return
		}
	}
}

// isBenignClose treats a peer's close-notify or plain EOF as a benign
// half-close, not a transport error. Go's crypto/tls folds both cases into
// a single io.EOF, so there is nothing further to distinguish here.
func isBenignClose(err error) bool {
	return err == io.EOF
}

func (s *Stream) HasBytesAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len() > 0
}

func (s *Stream) HasSpaceAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		if s.err != nil {
			return 0, s.err
		}
		if s.ended {
			return 0, io.EOF
		}
		return 0, nil
	}
	return s.pending.Read(p)
}

// Write encrypts and sends p in one TLS record write. Go's crypto/tls
// Write is all-or-nothing (full record or error), so there is no
// zero-byte-write retry case to handle here.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		return n, xerrors.NewWritingFailed(s.host, err)
	}
	return n, nil
}

func (s *Stream) ReadAll() ([]byte, error) { return pairedstream.DrainReadAll(s) }

func (s *Stream) WriteAll(p []byte) error { return pairedstream.DrainWriteAll(s, p) }

// Close sends a TLS close-notify and then closes the wrapped stream.
// Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	closeErr := s.conn.Close() // best-effort close-notify; peer silence is acceptable
	_ = closeErr
	if err := s.lower.Close(); err != nil {
		return err
	}
	return nil
}

// connAdapter presents a pairedstream.Stream as a net.Conn so crypto/tls,
// which only knows how to layer over net.Conn, can be nested arbitrarily
// deep: tls.Client(conn, cfg) chained over a prior tls.Client.
type connAdapter struct {
	lower pairedstream.Stream
}

func (a *connAdapter) Read(p []byte) (int, error) {
	for {
		n, err := a.lower.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		time.Sleep(pollInterval)
	}
}

func (a *connAdapter) Write(p []byte) (int, error) {
	if err := a.lower.WriteAll(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (a *connAdapter) Close() error                     { return a.lower.Close() }
func (a *connAdapter) LocalAddr() net.Addr              { return noAddr{} }
func (a *connAdapter) RemoteAddr() net.Addr             { return noAddr{} }
func (a *connAdapter) SetDeadline(time.Time) error      { return nil }
func (a *connAdapter) SetReadDeadline(time.Time) error  { return nil }
func (a *connAdapter) SetWriteDeadline(time.Time) error { return nil }

type noAddr struct{}

func (noAddr) Network() string { return "tunnelstack" }
func (noAddr) String() string  { return "layered-stream" }
