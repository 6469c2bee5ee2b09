// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/duplex/internal/wireframe"
)

// Dialer is the connecting side of duplex: it dials network/address,
// performs the handshake, and keeps one Session alive across transient
// disconnects by reconnecting and resuming the same session id with a
// backoff between attempts.
type Dialer struct {
	network, address string
	cfg              *DialerConfig

	mu   sync.Mutex
	sess *Session

	onBind func(*Session)
}

// NewDialer returns a Dialer for the given network ("tcp", "unix", ...)
// and address, using cfg or NewDialerConfig's defaults if cfg is nil.
func NewDialer(network, address string, cfg *DialerConfig) *Dialer {
	if cfg == nil {
		cfg = NewDialerConfig()
	}
	return &Dialer{network: network, address: address, cfg: cfg}
}

// OnBind registers fn to run every time this Dialer's connection binds to
// its Session — the first connect and every subsequent reconnect.
func (d *Dialer) OnBind(fn func(*Session)) { d.onBind = fn }

// Session returns the Dialer's current Session, which may be in any
// state from Fresh through Dead depending on connection history. Session
// returns (nil, false) before Run's first successful connect.
func (d *Dialer) Session() (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess, d.sess != nil
}

// Run dials, handshakes, and serves the connection, retrying with backoff
// after transport loss or a failed dial or handshake, until ctx is
// cancelled, MaxReconnectAttempts consecutive attempts have failed, or the
// session is already Dead when its connection ends. A peer that does not
// recognize the session id being resumed assigns a fresh one; Run binds a
// new Session and Endpoint for it and carries on.
func (d *Dialer) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := (&net.Dialer{}).DialContext(ctx, d.network, d.address)
		if err != nil {
			if !d.retryAfterFailure(ctx, &attempts) {
				return err
			}
			continue
		}

		bo := wireframe.ByteOrderForNetwork(d.network)
		requested := d.requestedSessionID()
		id, resumed, err := clientHandshake(conn, requested, bo)
		if err != nil {
			conn.Close()
			d.cfg.Logger.Warn("duplex: handshake failed", "err", err)
			if !d.retryAfterFailure(ctx, &attempts) {
				return err
			}
			continue
		}
		attempts = 0

		sess, ep := d.bindSession(id, resumed, conn, bo)
		sess.bind(ep)
		d.cfg.Logger.Info("duplex: session bound", "session_id", id, "resumed", resumed, "trace_id", ep.TraceID())

		if d.onBind != nil {
			d.onBind(sess)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return ep.Run(gctx) })
		runErr := g.Wait()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sess.State() == SessionDead {
			return ErrSessionNotResumable
		}

		d.cfg.Logger.Warn("duplex: connection lost, will reconnect", "session_id", id, "err", runErr)
		if !d.retryAfterFailure(ctx, &attempts) {
			sess.kill()
			return runErr
		}
	}
}

func (d *Dialer) requestedSessionID() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess == nil {
		return 0
	}
	return d.sess.ID()
}

// bindSession returns the Session and Endpoint the just-completed
// handshake should bind to: on a resumption of this Dialer's own session,
// it migrates conn into the existing Endpoint via rebind; otherwise it
// allocates a fresh Session and Endpoint.
func (d *Dialer) bindSession(id uint64, resumed bool, conn net.Conn, bo binary.ByteOrder) (*Session, *Endpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if resumed && d.sess != nil && d.sess.ID() == id {
		if ep := d.sess.endpointForRebind(); ep != nil {
			ep.rebind(conn, bo)
			return d.sess, ep
		}
	}
	d.sess = newSession(id, d.cfg.SuspendTimeout)
	ep := NewEndpoint(conn, d.cfg.Endpoint, bo)
	return d.sess, ep
}

// retryAfterFailure reports whether the Dialer should attempt to
// reconnect, sleeping for ReconnectBackoff (interruptible by ctx) first.
// It returns false once MaxReconnectAttempts is exhausted (declaring the
// current Session, if any, Dead) or ctx ends.
func (d *Dialer) retryAfterFailure(ctx context.Context, attempts *int) bool {
	*attempts++
	if d.cfg.MaxReconnectAttempts > 0 && *attempts > d.cfg.MaxReconnectAttempts {
		if sess, ok := d.Session(); ok {
			sess.kill()
		}
		return false
	}
	return sleepContext(ctx, d.cfg.ReconnectBackoff)
}

// sleepContext waits for d, or returns false early if ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
