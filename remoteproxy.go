// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/variant"
)

// RemoteProxy is a handle to an object the peer exposes: the pair of
// which connection to call it through and which id names it there. A
// RemoteProxy is only ever constructed by an ObjectTable's IDResolver
// when unpacking an incoming ObjectID; application code receives one as
// part of a call's arguments or return value, never constructs one
// directly.
//
// A RemoteProxy is scoped to its owning Endpoint. A resumed Session keeps
// that same Endpoint, so the proxy stays usable across a reconnect. Once
// the Endpoint closes for good, its Call and Notify methods fail with
// ErrClosed: the id it names has no meaning on any other Endpoint.
type RemoteProxy struct {
	endpoint *Endpoint
	id       uint32
}

// ObjectID returns the peer-side id this proxy names.
func (p *RemoteProxy) ObjectID() uint32 { return p.id }

// Call invokes method on the peer's object and returns a Future for its
// result.
func (p *RemoteProxy) Call(method string, args variant.Value) *future.Future[variant.Value] {
	return p.endpoint.Call(p.id, method, args)
}

// Notify invokes method on the peer's object without expecting a return
// value (CALL_PROC).
func (p *RemoteProxy) Notify(method string, args variant.Value) error {
	return p.endpoint.CallProc(p.id, method, args)
}
