// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/variant"
)

func newEndpointPair(t *testing.T) (*Endpoint, *Endpoint, func()) {
	t.Helper()
	c1, c2 := net.Pipe()
	cfg := NewEndpointConfig()
	a := NewEndpoint(c1, cfg, binary.BigEndian)
	b := NewEndpoint(c2, cfg, binary.BigEndian)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	go b.Run(ctx)

	return a, b, func() {
		cancel()
		a.Close()
		b.Close()
	}
}

func TestEndpoint_CallFunc_Echo(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	echo := NewLocalObject().Handle("echo", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return call.Args, nil, nil
	})
	b.RegisterGlobal(echo)

	fut := a.Call(globalObjectID, "echo", variant.NewString([]byte("hello")))
	v := fut.Wait()
	s, ok := v.Text()
	require.True(t, ok)
	require.Equal(t, "hello", s)
}

func TestEndpoint_CallFunc_UnknownObject(t *testing.T) {
	a, _, stop := newEndpointPair(t)
	defer stop()

	fut := a.Call(12345, "whatever", variant.NewNull())
	v := fut.Wait()
	require.True(t, v.IsException())
}

func TestEndpoint_CallFunc_UnknownMethod(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	b.RegisterGlobal(NewLocalObject())

	fut := a.Call(globalObjectID, "nope", variant.NewNull())
	v := fut.Wait()
	require.True(t, v.IsException())
}

func TestEndpoint_CallFunc_HandlerError(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	boom := NewLocalObject().Handle("boom", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return variant.Value{}, nil, ErrUnknownMethod
	})
	b.RegisterGlobal(boom)

	fut := a.Call(globalObjectID, "boom", variant.NewNull())
	v := fut.Wait()
	require.True(t, v.IsException())
}

func TestEndpoint_CallProc_FireAndForget(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	done := make(chan struct{})
	notify := NewLocalObject().Handle("notify", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		close(done)
		return variant.NewNull(), nil, nil
	})
	b.RegisterGlobal(notify)

	err := a.CallProc(globalObjectID, "notify", variant.NewNull())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CALL_PROC handler never ran")
	}
}

func TestEndpoint_DeferredResult_ReturnWritten(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	streaming := NewLocalObject().Handle("stream", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		writeFut := call.ReturnWritten(variant.NewInt(99))
		return variant.Value{}, writeFut, nil
	})
	b.RegisterGlobal(streaming)

	fut := a.Call(globalObjectID, "stream", variant.NewNull())
	v := fut.Wait()
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(99), n)
}

func TestEndpoint_DeferredResult_FutureHandler(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	inner := future.New[variant.Value](func(err error) variant.Value { return variant.NewException(err.Error()) })
	go func() {
		time.Sleep(10 * time.Millisecond)
		inner.FireSuccess(variant.NewInt(5))
	}()

	deferred := NewLocalObject().Handle("later", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return variant.Value{}, inner, nil
	})
	b.RegisterGlobal(deferred)

	fut := a.Call(globalObjectID, "later", variant.NewNull())
	v := fut.Wait()
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(5), n)
}

func TestEndpoint_ObjectHandleRoundTrip(t *testing.T) {
	a, b, stop := newEndpointPair(t)
	defer stop()

	counter := NewLocalObject()
	count := 0
	counter.Handle("bump", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		count++
		return variant.NewInt(int64(count)), nil, nil
	})

	factory := NewLocalObject().Handle("make", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return variant.NewObject(counter), nil, nil
	})
	b.RegisterGlobal(factory)

	fut := a.Call(globalObjectID, "make", variant.NewNull())
	v := fut.Wait()
	require.False(t, v.IsException())
	obj, ok := v.Object()
	require.True(t, ok)
	proxy, ok := obj.(*RemoteProxy)
	require.True(t, ok)

	bumped := proxy.Call("bump", variant.NewNull()).Wait()
	n, _ := bumped.Int()
	require.Equal(t, int64(1), n)
}

func TestEndpoint_PingPong(t *testing.T) {
	a, _, stop := newEndpointPair(t)
	defer stop()

	require.NoError(t, a.sendPing())
	time.Sleep(20 * time.Millisecond)
}

func TestEndpoint_Close_FailsPendingCalls(t *testing.T) {
	a, _, stop := newEndpointPair(t)
	fut := future.New[variant.Value](func(err error) variant.Value { return variant.NewException(err.Error()) })
	a.mu.Lock()
	a.pending[9999] = fut
	a.mu.Unlock()

	a.Close()
	v := fut.Wait()
	require.True(t, v.IsException())
	stop()
}

func TestEndpoint_CallAfterClose(t *testing.T) {
	a, _, stop := newEndpointPair(t)
	a.Close()
	defer stop()

	fut := a.Call(globalObjectID, "x", variant.NewNull())
	v := fut.Wait()
	require.True(t, v.IsException())
}
