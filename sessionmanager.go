// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/duplex/internal/wireframe"
)

// SessionManager is the accepting side of duplex: it listens for
// connections, performs the handshake, and binds each one to a Session —
// a new one, or a resumption of one left Suspended by an earlier
// connection from the same peer.
type SessionManager struct {
	cfg *SessionManagerConfig

	mu       sync.Mutex
	sessions map[uint64]*Session

	onBind func(*Session)
}

// NewSessionManager returns a SessionManager using cfg, or
// NewSessionManagerConfig's defaults if cfg is nil.
func NewSessionManager(cfg *SessionManagerConfig) *SessionManager {
	if cfg == nil {
		cfg = NewSessionManagerConfig()
	}
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[uint64]*Session),
	}
}

// OnBind registers fn to run every time a connection binds to a Session —
// both the first time (a fresh Session) and every subsequent resumption.
// A resumption rebinds the new connection into the Session's existing
// Endpoint, so objects registered on a previous bind (including the
// global object) are still registered when fn runs again.
func (m *SessionManager) OnBind(fn func(*Session)) { m.onBind = fn }

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
// Each connection is handshaked and served in its own goroutine,
// independent of every other connection's lifetime: one connection's
// framing error or hard close must never force-close its siblings, since
// that would make their own Run calls misread a sibling's problem as
// their own deliberate shutdown and skip the resumable-disconnect path.
// Serve returns once the listener itself is closed or Accept fails for
// another reason; outstanding per-connection goroutines are not waited
// on.
func (m *SessionManager) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return g.Wait()
			}
			return err
		}
		go func() {
			if err := m.handleConn(ctx, conn); err != nil {
				m.cfg.Logger.Warn("duplex: connection handling ended", "err", err)
			}
		}()
	}
}

func (m *SessionManager) handleConn(ctx context.Context, conn net.Conn) error {
	bo := wireframe.ByteOrderForNetwork(conn.LocalAddr().Network())

	id, resumed, err := serverHandshake(conn, bo, m.resumable, m.allocateSessionID)
	if err != nil {
		conn.Close()
		m.cfg.Logger.Warn("duplex: handshake failed", "err", err)
		return nil
	}

	sess, ep := m.bindSession(id, resumed, conn, bo)
	sess.bind(ep)
	m.cfg.Logger.Info("duplex: session bound", "session_id", id, "resumed", resumed, "trace_id", ep.TraceID())

	if m.onBind != nil {
		m.onBind(sess)
	}
	return ep.Run(ctx)
}

// resumable reports whether id names a session this manager still
// recognizes and hasn't declared Dead. A freshly accepted connection
// presenting a known, non-Dead id always wins the resumption, even one
// this manager hasn't yet itself noticed is Suspended — see
// Endpoint.rebind.
func (m *SessionManager) resumable(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return ok && sess.State() != SessionDead
}

func (m *SessionManager) allocateSessionID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		id := m.cfg.RandUint64()
		if id == 0 {
			continue
		}
		if _, taken := m.sessions[id]; !taken {
			return id
		}
	}
}

// bindSession returns the Session conn should attach to: on a resumption
// of a session this manager still has, it migrates conn into that
// session's existing Endpoint via rebind and returns the same Session and
// Endpoint; otherwise it allocates a fresh Session and Endpoint.
func (m *SessionManager) bindSession(id uint64, resumed bool, conn net.Conn, bo binary.ByteOrder) (*Session, *Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resumed {
		if sess, ok := m.sessions[id]; ok {
			if ep := sess.endpointForRebind(); ep != nil {
				ep.rebind(conn, bo)
				return sess, ep
			}
		}
	}
	sess := newSession(id, m.cfg.SuspendTimeout)
	ep := NewEndpoint(conn, m.cfg.Endpoint, bo)
	m.sessions[id] = sess
	return sess, ep
}

// Session looks up a session this manager has accepted, by id.
func (m *SessionManager) Session(id uint64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}
