// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshake_FreshSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var allocated uint64 = 777
	errCh := make(chan error, 1)
	var srvID uint64
	var srvResumed bool
	go func() {
		var err error
		srvID, srvResumed, err = serverHandshake(server, binary.BigEndian,
			func(uint64) bool { return false },
			func() uint64 { return allocated },
		)
		errCh <- err
	}()

	id, resumed, err := clientHandshake(client, 0, binary.BigEndian)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, allocated, id)
	require.False(t, resumed)
	require.Equal(t, allocated, srvID)
	require.False(t, srvResumed)
}

func TestHandshake_Resumed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := serverHandshake(server, binary.BigEndian,
			func(id uint64) bool { return id == 42 },
			func() uint64 { t.Fatal("allocate should not be called on resumption"); return 0 },
		)
		errCh <- err
	}()

	id, resumed, err := clientHandshake(client, 42, binary.BigEndian)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, uint64(42), id)
	require.True(t, resumed)
}

func TestHandshake_RejectedResumption(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := serverHandshake(server, binary.BigEndian,
			func(uint64) bool { return false },
			func() uint64 { return 900 },
		)
		errCh <- err
	}()

	id, resumed, err := clientHandshake(client, 42, binary.BigEndian)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.False(t, resumed)
	require.Equal(t, uint64(900), id)
}

func TestHandshake_BadMagic(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("XXXX"))
	}()

	_, _, err := clientHandshake(client, 0, binary.BigEndian)
	require.ErrorIs(t, err, ErrHandshakeFailed)
}
