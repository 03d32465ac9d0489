// Package tunnel implements the nested-tunnel orchestrator: the 5-state
// machine that layers CONNECT tunnels and TLS sessions to reach an origin
// through a chain of HTTPS forward proxies, then issues one HTTP/1.1
// request and returns its response.
package tunnel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tunnelstack/httpss/internal/config"
	"github.com/tunnelstack/httpss/internal/endpoint"
	"github.com/tunnelstack/httpss/internal/httpmsg"
	"github.com/tunnelstack/httpss/internal/pairedstream"
	"github.com/tunnelstack/httpss/internal/tlslayer"
	"github.com/tunnelstack/httpss/internal/xerrors"
	"github.com/tunnelstack/httpss/internal/xlog"
)

// ErrNoResponse is returned when the peer closes the connection before a
// response was parsed — a silent reset. This is deliberately not a
// *xerrors.Error since it is not a parse, transport, or configuration
// failure, just the benign shutdown case.
var ErrNoResponse = errors.New("tunnel: connection closed before a response was received")

// Orchestrator drives one proxy chain. targets has length >= 1: every
// entry but the last is a proxy to CONNECT through, in order; the last is
// the origin. An Orchestrator handles at most one in-flight Issue call at
// a time, but may be reused sequentially once Issue returns.
type Orchestrator struct {
	targets []endpoint.Endpoint
	opts    config.Options
	log     *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

// New returns an Orchestrator for targets, the proxy chain followed by the
// origin endpoint, configured by opts.
func New(targets []endpoint.Endpoint, opts config.Options) (*Orchestrator, error) {
	if len(targets) == 0 {
		return nil, xerrors.NewInvalidRequest("at least one target is required")
	}
	opts = opts.WithDefaults()
	return &Orchestrator{
		targets: targets,
		opts:    opts,
		log:     xlog.Named(opts.Logger, "tunnel"),
	}, nil
}

// Issue establishes every CONNECT/TLS layer the chain requires, sends req
// over the innermost layer, and returns the parsed response. It blocks
// until completion, error, or ctx is done.
func (o *Orchestrator) Issue(ctx context.Context, req httpmsg.Request) (httpmsg.Response, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return httpmsg.Response{}, xerrors.NewInvalidRequest("orchestrator already has a request in flight")
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	if err := req.Validate(); err != nil {
		return httpmsg.Response{}, err
	}

	requestID := uuid.NewString()
	log := o.log.With(zap.String("requestID", requestID))
	tm := newTimer()

	loop := pairedstream.NewEventLoop()
	var layers []pairedstream.Stream

	// layerCancel releases the timeout context backing the handshake
	// currently in flight (or just completed). It must only be invoked
	// once that handshake's goroutine has already returned — calling it
	// earlier would cancel a handshake that hasn't started yet, since
	// tlslayer.Stream.Open runs the handshake asynchronously and returns
	// immediately. reset and the OpenCompleted/ErrorOccurred handling
	// below are the only call sites.
	var layerCancel context.CancelFunc = func() {}

	reset := func() {
		layerCancel()
		for i := len(layers) - 1; i >= 0; i-- {
			layers[i].Close()
		}
	}

	raw := pairedstream.NewRawStream(o.targets[0].String())
	raw.Schedule(loop)
	dialCtx, cancelDial := withTimeout(ctx, o.opts.DialTimeout)
	tm.startDial()
	err := raw.Open(dialCtx)
	tm.endDial()
	cancelDial()
	if err != nil {
		log.Error("dial failed", zap.Error(err))
		return httpmsg.Response{}, err
	}
	layers = append(layers, raw)

	tm.startTLS()
	topTargetIdx, cancel, err := o.wrapLayer(ctx, loop, &layers, log)
	layerCancel = cancel
	if err != nil {
		reset()
		log.Error("initial TLS handshake failed", zap.Error(err))
		return httpmsg.Response{}, err
	}

	st := stateInactive
	top := layers[len(layers)-1]

	for {
		var ev pairedstream.Event
		select {
		case ev = <-loop.Events():
		case <-ctx.Done():
			log.Debug("context done before a response was parsed", zap.Error(ctx.Err()))
			reset()
			return httpmsg.Response{}, ctx.Err()
		}
		if ev.Stream != top {
			continue // stale event from a buried layer; only the top layer drives the FSM.
		}

		switch ev.Kind {
		case pairedstream.EventOpenCompleted:
			layerCancel()
			layerCancel = func() {}
			tm.endTLS()
			st = nextStateAfterLayer(topTargetIdx, len(o.targets))
			log.Debug("layer established", zap.Int("layers", len(layers)), zap.String("state", st.String()))

		case pairedstream.EventHasSpaceAvailable:
			switch st {
			case stateShouldEstablishTunnelConnection:
				target := o.targets[topTargetIdx+1]
				proxy := o.targets[topTargetIdx]
				connectReq := httpmsg.NewConnect(target, proxy, nil)
				b, err := httpmsg.Compose(connectReq)
				if err != nil {
					reset()
					return httpmsg.Response{}, err
				}
				if err := top.WriteAll(b); err != nil {
					reset()
					log.Error("writing CONNECT failed", zap.Error(err))
					return httpmsg.Response{}, err
				}
				st = stateExpectTunnelConnectionEstablished

			case stateShouldSendHTTPRequest:
				b, err := httpmsg.Compose(req)
				if err != nil {
					reset()
					return httpmsg.Response{}, err
				}
				if err := top.WriteAll(b); err != nil {
					reset()
					log.Error("writing request failed", zap.Error(err))
					return httpmsg.Response{}, err
				}
				tm.startTTFB()
				st = stateExpectHTTPResponse
			}

		case pairedstream.EventHasBytesAvailable:
			switch st {
			case stateExpectTunnelConnectionEstablished:
				raw2, err := top.ReadAll()
				if err != nil {
					reset()
					return httpmsg.Response{}, err
				}
				resp, err := httpmsg.Parse(raw2, httpmsg.ParseOptions{})
				if err != nil {
					reset()
					return httpmsg.Response{}, err
				}
				if resp.Status != 200 {
					reset()
					return httpmsg.Response{}, xerrors.NewUnexpectedResponse(resp.Status, resp.Reason)
				}
				tm.startTLS()
				nextIdx, nextCancel, err := o.wrapLayer(ctx, loop, &layers, log)
				layerCancel = nextCancel
				if err != nil {
					reset()
					log.Error("TLS handshake failed", zap.Int("depth", len(layers)+1), zap.Error(err))
					return httpmsg.Response{}, err
				}
				topTargetIdx = nextIdx
				top = layers[len(layers)-1]
				// st advances on the new layer's own openCompleted event.

			case stateExpectHTTPResponse:
				tm.endTTFB()
				raw2, err := top.ReadAll()
				if err != nil {
					reset()
					return httpmsg.Response{}, err
				}
				resp, err := httpmsg.Parse(raw2, httpmsg.ParseOptions{})
				reset()
				if err != nil {
					return httpmsg.Response{}, err
				}
				log.Info("request completed", zap.Int("status", resp.Status), zap.Stringer("metrics", tm.metrics()))
				return resp, nil
			}

		case pairedstream.EventEndEncountered:
			log.Debug("end encountered before a response was parsed, resetting silently")
			reset()
			return httpmsg.Response{}, ErrNoResponse

		case pairedstream.EventErrorOccurred:
			log.Error("stream error", zap.Error(ev.Err))
			reset()
			return httpmsg.Response{}, ev.Err
		}
	}
}

// wrapLayer pushes a fresh TLS session onto layers, targeting whichever
// endpoint the indexing contract assigns to the current depth (transition
// 2), and returns that target's index plus the cancel func for the
// handshake's timeout context. The caller must invoke the returned cancel
// only after observing that layer's openCompleted or errorOccurred event
// (tlslayer.Stream.Open runs the handshake on its own goroutine and
// returns immediately, so canceling any sooner would abort a handshake
// that hasn't run yet).
func (o *Orchestrator) wrapLayer(ctx context.Context, loop *pairedstream.EventLoop, layers *[]pairedstream.Stream, log *zap.Logger) (int, context.CancelFunc, error) {
	idx := currentLayer(len(*layers))
	target := o.targets[idx]
	pinner := o.opts.Pins.For(target.Host())

	ts := tlslayer.New((*layers)[len(*layers)-1], target.Host(), pinner, o.opts.RootCAs)
	ts.Schedule(loop)

	hctx, cancel := withTimeout(ctx, o.opts.HandshakeTimeout)
	if err := ts.Open(hctx); err != nil {
		return idx, cancel, err
	}
	*layers = append(*layers, ts)
	log.Debug("wrapping TLS layer", zap.String("host", target.Host()), zap.Int("targetIdx", idx))
	return idx, cancel, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
