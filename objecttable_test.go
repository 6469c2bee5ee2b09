// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectTable_RegisterAndDelete(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	id := table.Register(obj)
	require.GreaterOrEqual(t, id, objectIDBase)

	got, ok := table.lookupLocal(id)
	require.True(t, ok)
	require.Same(t, obj, got)

	// Registering the same object again returns the same id.
	id2 := table.Register(obj)
	require.Equal(t, id, id2)

	table.Delete(id)
	_, ok = table.lookupLocal(id)
	require.False(t, ok)
}

func TestObjectTable_RegisterGlobal(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	table.RegisterGlobal(obj)

	got, ok := table.lookupLocal(globalObjectID)
	require.True(t, ok)
	require.Same(t, obj, got)
}

func TestObjectTable_Replacer_LocalObject(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	id, err := table.replacer(obj)
	require.NoError(t, err)
	require.GreaterOrEqual(t, id, objectIDBase)
}

func TestObjectTable_Replacer_RemoteProxy_WrongEndpoint(t *testing.T) {
	ep1 := &Endpoint{}
	ep2 := &Endpoint{}
	table := newObjectTable(ep1)

	rp := &RemoteProxy{endpoint: ep2, id: 5}
	_, err := table.replacer(rp)
	require.Error(t, err)
}

func TestObjectTable_Replacer_RemoteProxy_SameEndpoint(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	rp := &RemoteProxy{endpoint: ep, id: 7}
	id, err := table.replacer(rp)
	require.NoError(t, err)
	require.Equal(t, uint32(7), id)
}

func TestObjectTable_Replacer_RejectsOther(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)
	_, err := table.replacer(42)
	require.Error(t, err)
}

func TestObjectTable_Resolver_LocalRoundTrip(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	id := table.Register(obj)

	resolved, err := table.resolver(id)
	require.NoError(t, err)
	require.Same(t, obj, resolved)
}

func TestObjectTable_Resolver_CreatesAndCachesRemoteProxy(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	resolved1, err := table.resolver(999)
	require.NoError(t, err)
	rp1, ok := resolved1.(*RemoteProxy)
	require.True(t, ok)
	require.Equal(t, uint32(999), rp1.ObjectID())

	resolved2, err := table.resolver(999)
	require.NoError(t, err)
	require.Same(t, resolved1, resolved2)
}

func TestObjectTable_FreePeerLocalObject(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	id := table.Register(obj)

	table.freePeerLocalObject(id)
	_, ok := table.lookupLocal(id)
	require.False(t, ok)
}

func TestObjectTable_CloseAll(t *testing.T) {
	ep := &Endpoint{}
	table := newObjectTable(ep)

	obj := NewLocalObject()
	table.Register(obj)
	_, err := table.resolver(123)
	require.NoError(t, err)

	table.closeAll()
	require.Empty(t, table.localObjects)
	require.Empty(t, table.remoteProxies)
}
