// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"sync"

	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/variant"
)

// MethodHandler implements one method of a LocalObject. It may answer
// immediately by returning a value, or hand back a non-nil *future.Future
// to signal that the result is not ready yet — the Endpoint then defers
// sending the RETURN frame (for CALL_FUNC) until that Future fires. The
// connection's read loop stays paused until then: no further incoming
// frame is dispatched, while outbound calls from the handler still go out.
//
// Handlers invoked for CALL_PROC (no return expected) should return a nil
// Future; any value or error they return is discarded.
type MethodHandler func(call *Call) (variant.Value, *future.Future[variant.Value], error)

// LocalObject is an object this side exposes to its peer: a method-name
// to MethodHandler map plus the single dispatch operation the Endpoint
// drives incoming calls through.
type LocalObject struct {
	mu      sync.RWMutex
	methods map[string]MethodHandler
}

// NewLocalObject returns an object with no methods registered.
func NewLocalObject() *LocalObject {
	return &LocalObject{methods: make(map[string]MethodHandler)}
}

// Handle registers h under method, replacing any handler already
// registered for that name. Returns the receiver so calls can be chained
// at construction time.
func (o *LocalObject) Handle(method string, h MethodHandler) *LocalObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.methods[method] = h
	return o
}

func (o *LocalObject) lookup(method string) (MethodHandler, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.methods[method]
	return h, ok
}

// Call carries one incoming CALL_PROC/CALL_FUNC invocation to its
// MethodHandler.
type Call struct {
	// Endpoint is the connection the call arrived on — the same
	// connection any reply or further calls into the peer's objects
	// during this handler's execution should use.
	Endpoint *Endpoint

	// ObjectID is the id the peer addressed.
	ObjectID uint32

	// Method is the method name the peer addressed.
	Method string

	// Args is the call's argument tree, with any ObjectID the peer sent
	// already resolved to a *RemoteProxy.
	Args variant.Value

	isFunc bool
	reqID  uint32

	mu       sync.Mutex
	returned bool
	writeFut *future.Future[variant.Value]
}

// IsFunc reports whether the peer expects a RETURN frame for this call
// (CALL_FUNC) or not (CALL_PROC).
func (c *Call) IsFunc() bool { return c.isFunc }

// ReturnWritten sends v as this call's RETURN frame directly from inside
// the handler, instead of (or before) the handler's own return path, and
// reports the frame's write completion back to the caller: the returned
// Future fires once v's bytes have actually reached the underlying
// connection (success), or with the write error (failure). While the
// Endpoint is transiently disconnected the frame is queued for the next
// rebind instead, and the Future fires with success at once. This is the
// flow-control signal a streaming method uses to pace itself against a
// slow peer instead of buffering unboundedly.
//
// ReturnWritten panics if called on a CALL_PROC invocation (IsFunc
// false), or more than once for the same call: a call has exactly one
// RETURN.
func (c *Call) ReturnWritten(v variant.Value) *future.Future[variant.Value] {
	if !c.isFunc {
		panic("duplex: ReturnWritten called on a CALL_PROC invocation")
	}
	c.mu.Lock()
	if c.returned {
		c.mu.Unlock()
		panic("duplex: ReturnWritten called twice for the same call")
	}
	c.returned = true
	c.mu.Unlock()
	fut := c.Endpoint.sendReturn(c.reqID, v)
	c.mu.Lock()
	c.writeFut = fut
	c.mu.Unlock()
	return fut
}

func (c *Call) alreadyReturned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.returned
}

// writeFuture returns the write-completion Future stashed by a prior
// ReturnWritten call, or nil if none has been made yet.
func (c *Call) writeFuture() *future.Future[variant.Value] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeFut
}

func (c *Call) markReturned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.returned {
		return false
	}
	c.returned = true
	return true
}
