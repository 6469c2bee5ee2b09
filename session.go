// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"fmt"
	"sync"
	"time"
)

// SessionState is a Session's position in its lifecycle: Fresh (assigned
// an id, never yet bound to a live connection), Live (an Endpoint is
// actively serving it), Suspended (the Endpoint's connection dropped; the
// session may still be resumed before SuspendTimeout elapses), or Dead
// (resumption window expired, or the owner gave up). SessionBound is
// declared but never entered: bind moves a session straight to Live,
// before the SessionManager or Dialer runs its OnBind hook.
type SessionState uint8

const (
	SessionFresh SessionState = iota
	SessionBound
	SessionLive
	SessionSuspended
	SessionDead
)

func (s SessionState) String() string {
	switch s {
	case SessionFresh:
		return "Fresh"
	case SessionBound:
		return "Bound"
	case SessionLive:
		return "Live"
	case SessionSuspended:
		return "Suspended"
	case SessionDead:
		return "Dead"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// Session is the logical identity of a duplex connection across
// reconnects: a random 64-bit id that survives a brief network
// interruption, and so does the Endpoint bound to it.
//
// A reconnect migrates the newly accepted or dialed net.Conn into the
// session's existing Endpoint (see Endpoint.rebind) rather than replacing
// it: the ObjectTable, every outstanding Call's pending Future, and the
// request-id counter all carry over untouched. Only once the suspend
// timer actually expires without a successful resume does the Endpoint,
// its ObjectTable, and its pending calls get torn down for good. An
// application that wants to react to every (re)bind — not just the
// first — still uses SessionManager.OnBind / Dialer.OnBind, which fire on
// both a fresh session and a resumption alike.
type Session struct {
	mu sync.Mutex

	id    uint64
	state SessionState
	ep    *Endpoint

	suspendTimeout time.Duration
	suspendTimer   *time.Timer

	deadCh    chan struct{}
	deadOnce  sync.Once
}

func newSession(id uint64, suspendTimeout time.Duration) *Session {
	return &Session{
		id:             id,
		state:          SessionFresh,
		suspendTimeout: suspendTimeout,
		deadCh:         make(chan struct{}),
	}
}

// ID returns the session's 64-bit identity.
func (s *Session) ID() uint64 { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the session's current Endpoint and true if the session
// is Live, or (nil, false) otherwise.
func (s *Session) Endpoint() (*Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionLive {
		return nil, false
	}
	return s.ep, true
}

// endpointForRebind returns the session's Endpoint regardless of lifecycle
// state, or nil if it never had one. SessionManager and Dialer use this
// internally to find the existing Endpoint a resumption should migrate
// its new net.Conn into; application code should use Endpoint instead.
func (s *Session) endpointForRebind() *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ep
}

// Dead returns a channel that closes once the session transitions to
// Dead.
func (s *Session) Dead() <-chan struct{} { return s.deadCh }

// bind attaches ep as this session's live connection, canceling any
// pending suspend-timeout expiry. ep.onClose is overwritten to suspend
// the session when that connection eventually closes.
func (s *Session) bind(ep *Endpoint) {
	s.mu.Lock()
	if s.suspendTimer != nil {
		s.suspendTimer.Stop()
		s.suspendTimer = nil
	}
	s.ep = ep
	s.state = SessionLive
	s.mu.Unlock()

	ep.onClose = func(error) { s.suspend() }
}

// suspend moves a Live session to Suspended and starts its resumption
// window. The Endpoint itself is left bound: a resumption migrates a new
// net.Conn into it rather than allocating a fresh one. A no-op if the
// session is already Suspended or Dead.
func (s *Session) suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionSuspended || s.state == SessionDead {
		return
	}
	s.state = SessionSuspended
	s.suspendTimer = time.AfterFunc(s.suspendTimeout, s.expire)
}

// expire runs when the suspend-timeout elapses with no successful resume.
// It tears down the session's Endpoint for good — every pending Future
// fails with ErrSessionDead, and the ObjectTable is freed — before
// declaring the session Dead.
func (s *Session) expire() {
	s.mu.Lock()
	if s.state == SessionDead {
		s.mu.Unlock()
		return
	}
	s.state = SessionDead
	ep := s.ep
	s.ep = nil
	s.mu.Unlock()
	if ep != nil {
		ep.closeWithError(ErrSessionDead)
	}
	s.deadOnce.Do(func() { close(s.deadCh) })
}

// kill forces the session to Dead immediately, e.g. when a Dialer gives
// up reconnecting.
func (s *Session) kill() { s.expire() }
