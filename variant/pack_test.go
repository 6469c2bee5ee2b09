// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package variant_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/duplex/variant"
)

func roundTrip(t *testing.T, v variant.Value) variant.Value {
	t.Helper()
	b, err := variant.Pack(v)
	require.NoError(t, err)
	got, n, err := variant.Unpack(b)
	require.NoError(t, err)
	require.Equal(t, len(b), n, "Unpack must consume exactly what Pack produced")
	return got
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	cases := map[string]variant.Value{
		"null":      variant.NewNull(),
		"int":       variant.NewInt(-12345),
		"int zero":  variant.NewInt(0),
		"real":      variant.NewReal(2.71828),
		"string":    variant.NewStringFromString("the quick brown fox"),
		"empty str": variant.NewStringFromString(""),
		"exception": variant.NewException("disconnected"),
		"objectid":  variant.NewObjectID(100),
		"array": variant.NewArray([]variant.Value{
			variant.NewInt(1),
			variant.NewStringFromString("two"),
			variant.NewArray([]variant.Value{variant.NewNull()}),
		}),
		"map": variant.NewMap(map[string]variant.Value{
			"one": variant.NewInt(1),
			"two": variant.NewStringFromString("2"),
		}),
		"nested": variant.NewMap(map[string]variant.Value{
			"items": variant.NewArray([]variant.Value{
				variant.NewInt(1), variant.NewInt(2), variant.NewInt(3),
			}),
			"ok": variant.NewInt(1),
		}),
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, v)
			require.True(t, v.Equal(got), "unpack(pack(v)) must equal v")
		})
	}
}

func TestPack_ObjectRequiresReplacer(t *testing.T) {
	v := variant.NewObject(&struct{}{})

	_, err := variant.Pack(v)
	require.ErrorIs(t, err, variant.ErrNoReplacer)

	b, err := variant.PackWith(v, func(obj any) (uint32, error) {
		return 42, nil
	})
	require.NoError(t, err)

	got, _, err := variant.Unpack(b)
	require.NoError(t, err)
	require.Equal(t, variant.ObjectID, got.Tag())
	id, _ := got.ObjectID()
	require.Equal(t, uint32(42), id)
}

func TestUnpack_ResolverRewritesObjectID(t *testing.T) {
	b, err := variant.Pack(variant.NewObjectID(7))
	require.NoError(t, err)

	handle := &struct{ id uint32 }{id: 7}
	got, _, err := variant.UnpackWith(b, func(id uint32) (any, error) {
		require.Equal(t, uint32(7), id)
		return handle, nil
	})
	require.NoError(t, err)
	require.Equal(t, variant.Object, got.Tag())
	obj, ok := got.Object()
	require.True(t, ok)
	require.Same(t, handle, obj)
}

func TestPack_FutureAndPackedAreNotWireLegal(t *testing.T) {
	_, err := variant.Pack(variant.NewFuture(struct{}{}))
	require.ErrorIs(t, err, variant.ErrNotWireLegal)

	_, err = variant.Pack(variant.NewPacked([]byte{1, 2, 3}))
	require.ErrorIs(t, err, variant.ErrNotWireLegal)
}

func TestPack_MapKeyTooLong(t *testing.T) {
	longKey := make([]byte, 256)
	for i := range longKey {
		longKey[i] = 'a'
	}
	v := variant.NewMap(map[string]variant.Value{
		string(longKey): variant.NewInt(1),
	})
	_, err := variant.Pack(v)
	require.ErrorIs(t, err, variant.ErrKeyTooLong)
}

func TestUnpack_DuplicateKeyRejected(t *testing.T) {
	// Hand-build a Map frame with two identical single-byte keys "a".
	frame := []byte{
		byte(variant.Map),
		2, 0, 0, 0, // count = 2
		1, 'a', byte(variant.Int), 1, 0, 0, 0, 0, 0, 0, 0,
		1, 'a', byte(variant.Int), 2, 0, 0, 0, 0, 0, 0, 0,
	}
	_, _, err := variant.Unpack(frame)
	require.ErrorIs(t, err, variant.ErrDuplicateKey)
}

func TestUnpack_TruncatedInput(t *testing.T) {
	_, _, err := variant.Unpack([]byte{byte(variant.Int), 1, 2, 3})
	require.Error(t, err)
	require.True(t, errors.Is(err, variant.ErrTruncated))
}

func TestUnpack_UnknownTag(t *testing.T) {
	_, _, err := variant.Unpack([]byte{0xFE})
	require.ErrorIs(t, err, variant.ErrUnknownTag)
}
