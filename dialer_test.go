// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/variant"
)

func TestDialer_ConnectsAndBinds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	mgr := NewSessionManager(nil)
	mgr.OnBind(func(s *Session) {
		ep, _ := s.Endpoint()
		ep.RegisterGlobal(NewLocalObject().Handle("echo", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
			return call.Args, nil, nil
		}))
	})
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()
	go mgr.Serve(serverCtx, ln)

	dialer := NewDialer("tcp", ln.Addr().String(), nil)
	dialerBound := make(chan *Session, 4)
	dialer.OnBind(func(s *Session) { dialerBound <- s })

	dialerCtx, dialerCancel := context.WithCancel(context.Background())
	defer dialerCancel()
	go dialer.Run(dialerCtx)

	var sess *Session
	select {
	case sess = <-dialerBound:
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never bound")
	}
	require.Equal(t, SessionLive, sess.State())

	ep, ok := sess.Endpoint()
	require.True(t, ok)
	v := ep.Call(globalObjectID, "echo", variant.NewString([]byte("yo"))).Wait()
	s, ok := v.Text()
	require.True(t, ok)
	require.Equal(t, "yo", s)
}

// TestDialer_ReconnectsAfterDrop simulates spec scenario S5: a call with
// a slow, deferred-Future handler is in flight when the TCP socket drops;
// the dialer reconnects and resumes the same session id before the
// handler finishes; the original Future must still resolve with the
// correct value once it does, not fail the moment the socket dropped.
func TestDialer_ReconnectsAfterDrop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	const handlerDelay = 200 * time.Millisecond

	mgr := NewSessionManager(nil)
	mgr.OnBind(func(s *Session) {
		ep, _ := s.Endpoint()
		if _, ok := ep.objTable.lookupLocal(globalObjectID); ok {
			return
		}
		delay := NewLocalObject().Handle("delay", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
			inner := future.New[variant.Value](func(err error) variant.Value { return variant.NewException(err.Error()) })
			go func() {
				time.Sleep(handlerDelay)
				inner.FireSuccess(variant.NewInt(42))
			}()
			return variant.Value{}, inner, nil
		})
		ep.RegisterGlobal(delay)
	})
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()
	go mgr.Serve(serverCtx, ln)

	cfg := NewDialerConfig()
	cfg.ReconnectBackoff = 20 * time.Millisecond
	dialer := NewDialer("tcp", ln.Addr().String(), cfg)

	binds := make(chan *Session, 8)
	dialer.OnBind(func(s *Session) { binds <- s })

	dialerCtx, dialerCancel := context.WithCancel(context.Background())
	defer dialerCancel()
	go dialer.Run(dialerCtx)

	var first *Session
	select {
	case first = <-binds:
	case <-time.After(2 * time.Second):
		t.Fatal("initial bind never happened")
	}

	ep, ok := first.Endpoint()
	require.True(t, ok)

	fut := ep.Call(globalObjectID, "delay", variant.NewNull())

	ep.mu.Lock()
	conn := ep.conn
	ep.mu.Unlock()
	conn.Close()

	select {
	case second := <-binds:
		require.Equal(t, first.ID(), second.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("dialer never reconnected")
	}

	v := fut.Wait()
	require.False(t, v.IsException())
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(42), n)
}

func TestDialer_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := NewDialerConfig()
	cfg.ReconnectBackoff = 5 * time.Millisecond
	cfg.MaxReconnectAttempts = 2
	dialer := NewDialer("tcp", "127.0.0.1:1", cfg) // port 1 refuses connections

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := dialer.Run(ctx)
	require.Error(t, err)
}
