// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// handshakeMagic opens every duplex connection, before either side knows
// whether this is a fresh session or a resumption of one suspended
// earlier. Mismatched magic means the peer is speaking a different
// protocol (or a different protocol version) entirely. The server writes
// it first, so the client can verify the peer before committing anything
// of its own to the wire.
var handshakeMagic = [4]byte{'R', 'O', 'C', '1'}

// clientHandshake performs the dialing side of the handshake: read and
// verify the server's magic, write the session id to resume (0 requests a
// fresh session), then read back the id the server actually assigned.
// Resumption is inferred, not signaled by a separate status byte: the
// dialer asked to resume and got the same id back.
func clientHandshake(conn net.Conn, requestedSessionID uint64, bo binary.ByteOrder) (sessionID uint64, resumed bool, err error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(conn, magic); err != nil {
		return 0, false, fmt.Errorf("duplex: reading handshake magic: %w", err)
	}
	if [4]byte(magic) != handshakeMagic {
		return 0, false, ErrHandshakeFailed
	}

	out := make([]byte, 8)
	bo.PutUint64(out, requestedSessionID)
	if _, err := conn.Write(out); err != nil {
		return 0, false, fmt.Errorf("duplex: sending handshake: %w", err)
	}

	in := make([]byte, 8)
	if _, err := io.ReadFull(conn, in); err != nil {
		return 0, false, fmt.Errorf("duplex: reading handshake reply: %w", err)
	}
	sessionID = bo.Uint64(in)
	resumed = requestedSessionID != 0 && sessionID == requestedSessionID
	return sessionID, resumed, nil
}

// serverHandshake performs the accepting side: write the magic first, read
// the requested session id, ask lookup whether that id can be resumed,
// and reply with the final session id — the requested one if resumable,
// otherwise a freshly allocated one. A rejected resumption request is not
// an error: the connection simply proceeds as a new session, and the
// caller tells the two cases apart via the returned id and resumed bool.
func serverHandshake(conn net.Conn, bo binary.ByteOrder, lookup func(id uint64) bool, allocate func() uint64) (sessionID uint64, resumed bool, err error) {
	if _, err := conn.Write(handshakeMagic[:]); err != nil {
		return 0, false, fmt.Errorf("duplex: sending handshake magic: %w", err)
	}

	in := make([]byte, 8)
	if _, err := io.ReadFull(conn, in); err != nil {
		return 0, false, fmt.Errorf("duplex: reading handshake: %w", err)
	}
	requested := bo.Uint64(in)

	if requested != 0 && lookup(requested) {
		sessionID = requested
		resumed = true
	} else {
		sessionID = allocate()
		resumed = false
	}

	out := make([]byte, 8)
	bo.PutUint64(out, sessionID)
	if _, err := conn.Write(out); err != nil {
		return 0, false, fmt.Errorf("duplex: sending handshake reply: %w", err)
	}
	return sessionID, resumed, nil
}
