// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/internal/wireframe"
	"code.hybscloud.com/duplex/variant"
)

// Endpoint is the connection core: it frames one net.Conn into RPC
// frames, dispatches incoming calls into its ObjectTable, and correlates
// outgoing calls with their eventual RETURN frame.
//
// One goroutine, started by Run, drives the read loop. Frames are
// dispatched strictly in arrival order on that one goroutine: a CALL_FUNC
// whose handler hands back a deferred Future pauses the read loop until
// that Future (and the RETURN write it triggers) settles, instead of
// racing ahead to the next frame. Outbound frames are serialized through
// a single-in-flight send queue (sendMu) so a paused dispatch's eventual
// write never interleaves bytes with a concurrent outbound Call.
//
// A socket drop does not by itself discard this Endpoint's pending calls
// or ObjectTable: only a hard Close (deliberate shutdown, or the owning
// Session's suspend-expiry timer) does that. A transient drop instead
// marks the Endpoint not live; a later rebind swaps in the reconnected
// net.Conn and lets every in-flight Future and registered object survive
// the gap.
type Endpoint struct {
	conn    net.Conn
	cfg     *EndpointConfig
	traceID string

	objTable *ObjectTable

	rd io.Reader
	wr io.Writer

	sendMu sync.Mutex
	outbox [][]byte // frames queued while !live && !closed, flushed by rebind

	mu           sync.Mutex
	pending      map[uint32]*future.Future[variant.Value]
	nextReqID    uint32
	closed       bool // hard teardown has run; never rebinds again
	live         bool // a usable net.Conn is currently attached
	paused       bool // read loop currently blocked awaiting a resume trigger
	generation   int  // bumped on every rebind, guards a superseded Run call
	lastActivity time.Time

	// onClose, if set, is invoked exactly once per Run call with the error
	// that ended its read loop (nil on a clean peer-initiated close).
	// SessionManager and Dialer use this to notice transport loss and move
	// the owning Session to Suspended. It is not invoked when a rebind has
	// already superseded the Run call whose loop just ended.
	onClose func(err error)
}

// buildFramer constructs the wireframe Reader/Writer pair an Endpoint (or
// a rebind of one) uses to talk framed messages over conn.
func buildFramer(conn net.Conn, cfg *EndpointConfig, byteOrder binary.ByteOrder) (io.Reader, io.Writer) {
	opts := []wireframe.Option{
		wireframe.WithFixedU32(),
		wireframe.WithByteOrder(byteOrder),
		wireframe.WithBlock(),
	}
	if cfg.MaxFrameSize > 0 {
		opts = append(opts, wireframe.WithReadLimit(cfg.MaxFrameSize))
	}
	return wireframe.NewReader(conn, opts...), wireframe.NewWriter(conn, opts...)
}

// NewEndpoint wraps conn as an Endpoint. byteOrder controls the wire
// length-prefix order wireframe uses; pass wireframe.ByteOrderForNetwork
// with conn's network name to follow the TCP/Unix convention.
func NewEndpoint(conn net.Conn, cfg *EndpointConfig, byteOrder binary.ByteOrder) *Endpoint {
	if cfg == nil {
		cfg = NewEndpointConfig()
	}
	rd, wr := buildFramer(conn, cfg, byteOrder)

	ep := &Endpoint{
		conn:         conn,
		cfg:          cfg,
		traceID:      newTraceID(),
		pending:      make(map[uint32]*future.Future[variant.Value]),
		nextReqID:    uint32(cfg.RandUint64()),
		live:         true,
		lastActivity: cfg.TimeNow(),
		rd:           rd,
		wr:           wr,
	}
	ep.objTable = newObjectTable(ep)
	return ep
}

// TraceID returns the connection-correlation id attached to this
// Endpoint's log lines.
func (ep *Endpoint) TraceID() string { return ep.traceID }

// Paused reports whether the read loop is currently blocked waiting for an
// in-flight dispatch to settle before it reads the next frame.
func (ep *Endpoint) Paused() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.paused
}

func (ep *Endpoint) setPaused(v bool) {
	ep.mu.Lock()
	ep.paused = v
	ep.mu.Unlock()
}

// RegisterGlobal exposes obj under the well-known global object id.
func (ep *Endpoint) RegisterGlobal(obj *LocalObject) { ep.objTable.RegisterGlobal(obj) }

// Register exposes obj under a freshly allocated id and returns it.
func (ep *Endpoint) Register(obj *LocalObject) uint32 { return ep.objTable.Register(obj) }

// Delete stops exposing the LocalObject registered under id.
func (ep *Endpoint) Delete(id uint32) { ep.objTable.Delete(id) }

// Call invokes method on the object named by objectID and returns a
// Future for the RETURN value. The Future fires with an error if the
// Endpoint is closed for good before a RETURN arrives; a transient
// disconnect instead queues the CALL_FUNC frame until a rebind flushes it.
func (ep *Endpoint) Call(objectID uint32, method string, args variant.Value) *future.Future[variant.Value] {
	fut := future.New[variant.Value](func(err error) variant.Value {
		return variant.NewException(err.Error())
	})

	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		fut.FireError(ErrClosed)
		return fut
	}
	reqID := ep.nextReqID
	ep.nextReqID++
	ep.pending[reqID] = fut
	ep.mu.Unlock()

	body, err := encodeCall(msgCallFunc, reqID, objectID, method, args, ep.objTable.replacer)
	if err != nil {
		ep.removePending(reqID)
		fut.FireError(err)
		return fut
	}
	if err := ep.sendFrame(body); err != nil {
		ep.removePending(reqID)
		fut.FireError(err)
		return fut
	}
	return fut
}

// CallProc invokes method on the object named by objectID without
// expecting a return value.
func (ep *Endpoint) CallProc(objectID uint32, method string, args variant.Value) error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrClosed
	}
	ep.mu.Unlock()

	body, err := encodeCall(msgCallProc, 0, objectID, method, args, ep.objTable.replacer)
	if err != nil {
		return err
	}
	return ep.sendFrame(body)
}

func (ep *Endpoint) removePending(reqID uint32) {
	ep.mu.Lock()
	delete(ep.pending, reqID)
	ep.mu.Unlock()
}

// sendReturn encodes and sends a RETURN frame, returning a Future that
// fires once the frame's bytes have reached the connection (or been
// queued, for a transiently disconnected Endpoint) or the write fails.
func (ep *Endpoint) sendReturn(reqID uint32, v variant.Value) *future.Future[variant.Value] {
	fut := future.New[variant.Value](func(err error) variant.Value {
		return variant.NewException(err.Error())
	})
	body, err := encodeReturn(reqID, v, ep.objTable.replacer)
	if err != nil {
		fut.FireError(err)
		return fut
	}
	if err := ep.sendFrame(body); err != nil {
		fut.FireError(err)
		return fut
	}
	fut.FireSuccess(v)
	return fut
}

func (ep *Endpoint) sendDelObj(ids []uint32) {
	if ep.isClosed() {
		return
	}
	_ = ep.sendFrame(encodeDelObj(ids))
}

func (ep *Endpoint) sendPing() error { return ep.sendFrame(encodePing()) }
func (ep *Endpoint) sendPong() error { return ep.sendFrame(encodePong()) }

// sendFrame writes body to the current connection. While the Endpoint is
// transiently disconnected (not live, not yet closed for good), body is
// queued instead and flushed by the next rebind — this is what lets a
// CALL_FUNC issued during a suspension window, or a RETURN a paused
// handler finishes computing after the peer has already dropped, still
// reach the peer once it reconnects.
func (ep *Endpoint) sendFrame(body []byte) error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrClosed
	}
	if !ep.live {
		ep.outbox = append(ep.outbox, body)
		ep.mu.Unlock()
		return nil
	}
	ep.mu.Unlock()

	ep.sendMu.Lock()
	defer ep.sendMu.Unlock()
	if _, err := ep.wr.Write(body); err != nil {
		return err
	}
	ep.mu.Lock()
	ep.lastActivity = ep.cfg.TimeNow()
	ep.mu.Unlock()
	return nil
}

func (ep *Endpoint) isClosed() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.closed
}

// rebind attaches a freshly accepted or dialed net.Conn to this Endpoint
// in place of a previous one, for a resumed session. A fresh connection
// presenting this Endpoint's session id is always treated as
// authoritative, even if the old one hasn't been noticed dead yet — its
// own read loop may still be paused inside a slow dispatch and won't
// read-fail on its own for a while — so the old net.Conn is force-closed
// here rather than waited on. The generation counter this bumps lets that
// stale Run call recognize, once its own read eventually does fail, that
// it has already been superseded and must not tear down the Endpoint it
// no longer owns. pending, objTable, and nextReqID all carry over
// untouched.
func (ep *Endpoint) rebind(conn net.Conn, byteOrder binary.ByteOrder) {
	rd, wr := buildFramer(conn, ep.cfg, byteOrder)

	ep.mu.Lock()
	oldConn := ep.conn
	ep.conn = conn
	ep.rd = rd
	ep.wr = wr
	ep.live = true
	ep.generation++
	ep.lastActivity = ep.cfg.TimeNow()
	queued := ep.outbox
	ep.outbox = nil
	ep.mu.Unlock()

	if oldConn != nil && oldConn != conn {
		oldConn.Close()
	}

	if len(queued) == 0 {
		return
	}
	ep.sendMu.Lock()
	defer ep.sendMu.Unlock()
	for _, body := range queued {
		if _, err := wr.Write(body); err != nil {
			ep.cfg.Logger.Warn("duplex: flushing queued frame after resume failed", "trace_id", ep.traceID, "err", err)
			break
		}
	}
}

// disconnected marks a transient loss of the underlying connection: the
// Endpoint stops being live and the dead conn is released, but pending
// calls and the ObjectTable are left exactly as they are, awaiting either
// a rebind or the owning Session's suspend-expiry timer.
func (ep *Endpoint) disconnected() {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}
	ep.live = false
	conn := ep.conn
	ep.mu.Unlock()
	conn.Close()
}

// Run drives the read loop until the connection closes, the context is
// cancelled, or an unrecoverable framing error occurs. A cancelled ctx
// ends the Endpoint for good (Close); any other read-loop exit is treated
// as a transient disconnect a later rebind can recover from, unless the
// Endpoint has already been rebound onto a newer connection by the time
// this call's read loop ends, in which case this call has nothing left to
// tear down and returns quietly.
func (ep *Endpoint) Run(ctx context.Context) error {
	ep.mu.Lock()
	conn := ep.conn
	rd := ep.rd
	gen := ep.generation
	ep.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var cancelPing context.CancelFunc
	if ep.cfg.PingInterval > 0 {
		var pingCtx context.Context
		pingCtx, cancelPing = context.WithCancel(ctx)
		go ep.pingLoop(pingCtx)
	}

	loopErr := ep.readLoop(rd)
	if cancelPing != nil {
		cancelPing()
	}

	ep.mu.Lock()
	stale := ep.generation != gen
	ep.mu.Unlock()
	if stale {
		return loopErr
	}

	if ctx.Err() != nil {
		ep.closeWithError(ErrClosed)
	} else {
		ep.disconnected()
	}
	if loopErr != nil {
		label := ep.cfg.ErrClassifier.Classify(loopErr)
		ep.cfg.Logger.Error("duplex: connection lost", "trace_id", ep.traceID, "err", loopErr, "class", label)
	}
	if ep.onClose != nil {
		ep.onClose(loopErr)
	}
	return loopErr
}

// readLoop reads and dispatches frames from rd in arrival order. Dispatch
// of a CALL_FUNC whose handler defers its result pauses this loop — stops
// reading, per the frame-ordering guarantee — until that deferred result
// (and the RETURN write it triggers) settles, then continues with the
// next frame already on the wire.
func (ep *Endpoint) readLoop(rd io.Reader) error {
	buf := make([]byte, max(ep.cfg.MaxFrameSize, 1))
	for {
		n, err := rd.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, wireframe.ErrTooLong) {
				return ErrFrameTooLarge
			}
			return err
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])

		if resume := ep.handleFrame(frame); resume != nil {
			ep.setPaused(true)
			<-resume
			ep.setPaused(false)
		}
	}
}

// pingLoop sends an idle-detection PING whenever this Endpoint has not
// written any frame for a full PingInterval. It never sends a PING that
// would itself be the first frame racing against a fresh call, since any
// outbound write (including PONG replies) resets lastActivity.
func (ep *Endpoint) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(ep.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ep.mu.Lock()
			idle := ep.cfg.TimeNow().Sub(ep.lastActivity) >= ep.cfg.PingInterval
			closed := ep.closed
			ep.mu.Unlock()
			if closed {
				return
			}
			if idle {
				if err := ep.sendPing(); err != nil {
					return
				}
			}
		}
	}
}

// handleFrame decodes and dispatches one frame. It returns nil if the
// read loop may continue immediately, or a channel the read loop must
// block on before reading the next frame, implementing the back-pressure
// a paused CALL_FUNC dispatch requires.
func (ep *Endpoint) handleFrame(frame []byte) <-chan struct{} {
	if len(frame) == 0 {
		ep.cfg.Logger.Warn("duplex: dropping malformed frame", "trace_id", ep.traceID, "err", fmt.Errorf("duplex: empty frame"))
		return nil
	}
	t := msgType(frame[0])
	body := frame[1:]

	switch t {
	case msgPing:
		if err := ep.sendPong(); err != nil {
			ep.cfg.Logger.Warn("duplex: sending PONG failed", "trace_id", ep.traceID, "err", err)
		}
		return nil
	case msgPong:
		return nil
	case msgCallProc, msgCallFunc:
		cf, err := decodeCall(t, body, ep.objTable.resolver)
		if err != nil {
			ep.cfg.Logger.Warn("duplex: dropping malformed frame", "trace_id", ep.traceID, "err", err)
			return nil
		}
		return ep.dispatchCall(t == msgCallFunc, cf)
	case msgReturn:
		rf, err := decodeReturn(body, ep.objTable.resolver)
		if err != nil {
			ep.cfg.Logger.Warn("duplex: dropping malformed frame", "trace_id", ep.traceID, "err", err)
			return nil
		}
		return ep.handleReturn(rf)
	case msgDelObj:
		df, err := decodeDelObj(body)
		if err != nil {
			ep.cfg.Logger.Warn("duplex: dropping malformed frame", "trace_id", ep.traceID, "err", err)
			return nil
		}
		for _, id := range df.ids {
			ep.objTable.freePeerLocalObject(id)
		}
		return nil
	default:
		ep.cfg.Logger.Warn("duplex: dropping malformed frame", "trace_id", ep.traceID, "err", fmt.Errorf("duplex: unknown message type %d", frame[0]))
		return nil
	}
}

// handleReturn routes a RETURN frame to its Future. A result carrying the
// Exception tag fires the Future's error path rather than its success
// path, so a caller's AddError handler sees it instead of having to
// inspect a nominally-successful value's IsException itself.
func (ep *Endpoint) handleReturn(rf returnFrame) <-chan struct{} {
	ep.mu.Lock()
	fut, ok := ep.pending[rf.reqID]
	if ok {
		delete(ep.pending, rf.reqID)
	}
	ep.mu.Unlock()
	if !ok {
		ep.cfg.Logger.Warn("duplex: RETURN for unknown request id", "trace_id", ep.traceID, "req_id", rf.reqID)
		return nil
	}
	if rf.result.IsException() {
		msg, _ := rf.result.ExceptionText()
		fut.FireError(fmt.Errorf("%w: %s", ErrRemoteException, msg))
	} else {
		fut.FireSuccess(rf.result)
	}
	return ep.awaitFuture(fut)
}

// awaitFuture returns nil if fut has already fully settled — including
// any nested-Future splicing its own handler chain triggered — or a
// channel that closes once it does. The common case (a handler chain with
// no nested Future, or one that already resolved synchronously) returns
// nil immediately, so normal request/response traffic never pauses the
// read loop.
func (ep *Endpoint) awaitFuture(fut *future.Future[variant.Value]) <-chan struct{} {
	if fut == nil || (fut.Fired() && !fut.Pending()) {
		return nil
	}
	resume := make(chan struct{})
	fut.AddBoth(
		func(v variant.Value) (variant.Value, *future.Future[variant.Value], error) {
			close(resume)
			return v, nil, nil
		},
		func(err error) (variant.Value, *future.Future[variant.Value], error) {
			close(resume)
			return variant.Value{}, nil, nil
		},
	)
	return resume
}

// dispatchCall runs one CALL_PROC/CALL_FUNC's handler synchronously on
// the read-loop goroutine and reports the channel the loop must wait on
// before reading its next frame, per whichever of the four result shapes
// the handler chose: an immediate value, a ReturnWritten write in
// progress, a deferred Future, or an error.
func (ep *Endpoint) dispatchCall(isFunc bool, cf callFrame) <-chan struct{} {
	call := &Call{
		Endpoint: ep,
		ObjectID: cf.objectID,
		Method:   cf.method,
		Args:     cf.args,
		isFunc:   isFunc,
		reqID:    cf.reqID,
	}

	obj, ok := ep.objTable.lookupLocal(cf.objectID)
	if !ok {
		return ep.awaitFuture(ep.failCall(call, ErrUnknownObject))
	}
	handler, ok := obj.lookup(cf.method)
	if !ok {
		return ep.awaitFuture(ep.failCall(call, ErrUnknownMethod))
	}

	result, deferred, err := handler(call)
	if call.alreadyReturned() {
		// The handler already sent its RETURN via ReturnWritten; wait for
		// that write, not for a future this dispatch doesn't have.
		return ep.awaitFuture(call.writeFuture())
	}
	if err != nil {
		return ep.awaitFuture(ep.failCall(call, err))
	}
	if deferred != nil {
		resume := make(chan struct{})
		deferred.AddBoth(
			func(v variant.Value) (variant.Value, *future.Future[variant.Value], error) {
				ep.finishCall(call, v)
				close(resume)
				return v, nil, nil
			},
			func(herr error) (variant.Value, *future.Future[variant.Value], error) {
				ep.failCall(call, herr)
				close(resume)
				return variant.Value{}, nil, nil
			},
		)
		return resume
	}
	return ep.awaitFuture(ep.finishCall(call, result))
}

func (ep *Endpoint) finishCall(call *Call, v variant.Value) *future.Future[variant.Value] {
	if !call.isFunc || !call.markReturned() {
		return nil
	}
	return ep.sendReturn(call.reqID, v)
}

func (ep *Endpoint) failCall(call *Call, err error) *future.Future[variant.Value] {
	if !call.isFunc {
		ep.cfg.Logger.Warn("duplex: CALL_PROC failed", "trace_id", ep.traceID, "method", call.Method, "err", err)
		return nil
	}
	if !call.markReturned() {
		return nil
	}
	return ep.sendReturn(call.reqID, variant.NewException(err.Error()))
}

// Close tears down the Endpoint for good: the underlying net.Conn is
// closed, every pending outbound Call fails with ErrClosed, and every
// LocalObject this side exported on this connection is freed. Unlike a
// transient disconnect, a Close Endpoint never rebinds. Close is
// idempotent.
func (ep *Endpoint) Close() error { return ep.closeWithError(ErrClosed) }

func (ep *Endpoint) closeWithError(cause error) error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	ep.live = false
	conn := ep.conn
	pending := ep.pending
	ep.pending = nil
	ep.mu.Unlock()

	for _, fut := range pending {
		fut.FireError(cause)
	}
	ep.objTable.closeAll()
	return conn.Close()
}
