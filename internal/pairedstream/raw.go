package pairedstream

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"

	"github.com/tunnelstack/httpss/internal/xerrors"
)

// RawStream is the bottom of every layer stack: a paired stream over a
// freshly dialed TCP connection.
type RawStream struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	pending bytes.Buffer
	closed  bool
	err     error
	ended   bool

	loop *EventLoop
}

// NewRawStream returns a RawStream that will dial addr (host:port) when
// Open is called.
func NewRawStream(addr string) *RawStream {
	return &RawStream{addr: addr}
}

// Open dials the TCP connection and starts the background read pump.
func (s *RawStream) Open(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return xerrors.NewHandshakeFailed(s.addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.readPump()

	if s.loop != nil {
		s.loop.Post(Event{Kind: EventOpenCompleted, Stream: s})
		s.loop.Post(Event{Kind: EventHasSpaceAvailable, Stream: s})
	}
	return nil
}

// Schedule registers loop as the destination for this stream's events.
// Must be called before Open so the openCompleted event is observed.
func (s *RawStream) Schedule(loop *EventLoop) {
	s.loop = loop
}

func (s *RawStream) readPump() {
	buf := make([]byte, 64*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending.Write(buf[:n])
			s.mu.Unlock()
			if s.loop != nil {
				s.loop.Post(Event{Kind: EventHasBytesAvailable, Stream: s})
			}
		}
		if err != nil {
			s.mu.Lock()
			if isPeerHalfClose(err) {
				s.ended = true
			} else {
				s.err = err
			}
			s.mu.Unlock()
			if s.loop != nil {
				if isPeerHalfClose(err) {
					s.loop.Post(Event{Kind: EventEndEncountered, Stream: s})
				} else {
					s.loop.Post(Event{Kind: EventErrorOccurred, Stream: s, Err: xerrors.NewReadingFailed(s.addr, err)})
				}
			}
			return
		}
	}
}

// isPeerHalfClose classifies an error from Read as a benign end-of-stream
// condition rather than a transport failure.
func isPeerHalfClose(err error) bool {
	return err == io.EOF
}

func (s *RawStream) HasBytesAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len() > 0
}

func (s *RawStream) HasSpaceAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *RawStream) Read(p []byte) (int, error) {
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

func (s *RawStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed || conn == nil {
		return 0, xerrors.NewWritingFailed(s.addr, net.ErrClosed)
	}
	n, err := conn.Write(p)
	if err != nil {
		return n, xerrors.NewWritingFailed(s.addr, err)
	}
	return n, nil
}

func (s *RawStream) ReadAll() ([]byte, error) { return DrainReadAll(s) }

func (s *RawStream) WriteAll(p []byte) error { return DrainWriteAll(s, p) }

// Close is idempotent and releases the underlying socket.
func (s *RawStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return xerrors.NewClosingFailed(s.addr, err)
	}
	return nil
}
