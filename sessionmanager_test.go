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
	"code.hybscloud.com/duplex/internal/wireframe"
	"code.hybscloud.com/duplex/variant"
)

func TestSessionManager_AcceptAndServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	mgr := NewSessionManager(nil)
	bound := make(chan *Session, 1)
	mgr.OnBind(func(s *Session) {
		echo := NewLocalObject().Handle("echo", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
			return call.Args, nil, nil
		})
		ep, _ := s.Endpoint()
		ep.RegisterGlobal(echo)
		bound <- s
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	id, resumed, err := clientHandshake(conn, 0, wireframe.ByteOrderForNetwork("tcp"))
	require.NoError(t, err)
	require.False(t, resumed)
	require.NotZero(t, id)

	clientEp := NewEndpoint(conn, NewEndpointConfig(), wireframe.ByteOrderForNetwork("tcp"))
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()
	go clientEp.Run(clientCtx)

	select {
	case <-bound:
	case <-time.After(time.Second):
		t.Fatal("OnBind never ran")
	}

	v := clientEp.Call(globalObjectID, "echo", variant.NewInt(7)).Wait()
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(7), n)

	sess, ok := mgr.Session(id)
	require.True(t, ok)
	require.Equal(t, SessionLive, sess.State())
}
