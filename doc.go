// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package duplex implements a symmetric, connection-oriented RPC transport.
//
// Either side of a duplex connection may expose objects and invoke methods
// on objects exposed by the peer — there is no fixed client/server role at
// the protocol level, though SessionManager and Dialer give the two sides
// of a TCP or Unix-domain connection their conventional names. A call's
// arguments and its return value are a variant.Value tree; any Object
// value inside that tree is rewritten to a stable numeric id on the wire
// and resolved back into a live RemoteProxy on the receiving side. A
// method may answer immediately or hand back a future.Future and keep
// computing, including delivering the result over a different, later
// frame (PING/PONG and DELOBJ aside, every frame is part of exactly one
// call/return exchange).
//
// A connection survives brief network interruptions: SessionManager and
// Dialer assign each logical session a random 64-bit id independent of the
// underlying net.Conn, and a Dialer that loses its connection reconnects
// and resumes the same session rather than starting a new one, as long as
// the session has not exceeded its suspend timeout.
//
// ObjectTable, LocalObject, RemoteProxy, Endpoint, Session, SessionManager,
// and Dialer are declared in this one package rather than split further,
// because they are mutually referential (a RemoteProxy's Call reaches back
// into its owning Endpoint; an Endpoint's dispatch reaches into the
// ObjectTable that owns the objects it serves) and Go has no forward
// declaration that would let that reference cross a package boundary
// without a cycle. variant and future are the only concerns general enough
// to live as independent leaf packages.
package duplex
