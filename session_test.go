// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_InitialState(t *testing.T) {
	s := newSession(1, time.Second)
	require.Equal(t, SessionFresh, s.State())
	require.Equal(t, uint64(1), s.ID())
	_, ok := s.Endpoint()
	require.False(t, ok)
}

func TestSession_BindMakesItLive(t *testing.T) {
	s := newSession(1, time.Second)
	c1, c2 := net.Pipe()
	defer c2.Close()
	ep := NewEndpoint(c1, NewEndpointConfig(), binary.BigEndian)

	s.bind(ep)
	require.Equal(t, SessionLive, s.State())
	gotEp, ok := s.Endpoint()
	require.True(t, ok)
	require.Same(t, ep, gotEp)
}

func TestSession_SuspendThenExpire(t *testing.T) {
	s := newSession(1, 10*time.Millisecond)
	s.suspend()
	require.Equal(t, SessionSuspended, s.State())

	select {
	case <-s.Dead():
	case <-time.After(time.Second):
		t.Fatal("session never expired")
	}
	require.Equal(t, SessionDead, s.State())
}

func TestSession_SuspendNoopWhenDead(t *testing.T) {
	s := newSession(1, time.Millisecond)
	s.kill()
	require.Equal(t, SessionDead, s.State())
	s.suspend()
	require.Equal(t, SessionDead, s.State())
}

func TestSession_Kill(t *testing.T) {
	s := newSession(1, time.Hour)
	s.kill()
	require.Equal(t, SessionDead, s.State())
	select {
	case <-s.Dead():
	default:
		t.Fatal("deadCh not closed")
	}
}

func TestSessionState_String(t *testing.T) {
	require.Equal(t, "Live", SessionLive.String())
	require.Contains(t, SessionState(99).String(), "99")
}
