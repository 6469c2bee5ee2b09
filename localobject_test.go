// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/duplex/future"
	"code.hybscloud.com/duplex/variant"
)

func TestLocalObject_HandleAndLookup(t *testing.T) {
	obj := NewLocalObject()
	called := false
	obj.Handle("ping", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		called = true
		return variant.NewString([]byte("pong")), nil, nil
	})

	h, ok := obj.lookup("ping")
	require.True(t, ok)
	_, _, err := h(&Call{})
	require.NoError(t, err)
	require.True(t, called)

	_, ok = obj.lookup("missing")
	require.False(t, ok)
}

func TestLocalObject_HandleReplacesExisting(t *testing.T) {
	obj := NewLocalObject()
	obj.Handle("m", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return variant.NewInt(1), nil, nil
	})
	obj.Handle("m", func(call *Call) (variant.Value, *future.Future[variant.Value], error) {
		return variant.NewInt(2), nil, nil
	})

	h, ok := obj.lookup("m")
	require.True(t, ok)
	v, _, _ := h(&Call{})
	n, _ := v.Int()
	require.Equal(t, int64(2), n)
}

func TestCall_IsFunc(t *testing.T) {
	c := &Call{isFunc: true}
	require.True(t, c.IsFunc())
	c2 := &Call{isFunc: false}
	require.False(t, c2.IsFunc())
}

func TestCall_ReturnWritten_PanicsOnCallProc(t *testing.T) {
	c := &Call{isFunc: false}
	require.Panics(t, func() {
		c.ReturnWritten(variant.NewNull())
	})
}

func TestCall_MarkReturned_OnlyOnce(t *testing.T) {
	c := &Call{isFunc: true}
	require.True(t, c.markReturned())
	require.False(t, c.markReturned())
	require.True(t, c.alreadyReturned())
}
