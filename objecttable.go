// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"fmt"
	"runtime"
	"sync"

	"code.hybscloud.com/duplex/variant"
)

const (
	// globalObjectID is the well-known id every connection can reach
	// without a prior handshake exchange — the root object an
	// application registers with RegisterGlobal.
	globalObjectID uint32 = 0

	// objectIDBase is the first id handed out by Register. IDs below it
	// are reserved (today, only 0).
	objectIDBase uint32 = 100
)

// ObjectTable is the per-connection registry of objects this side
// exposes (LocalObject, keyed by id) and handles this side holds on
// objects the peer exposes (RemoteProxy, keyed by the peer's id for that
// object). It is peer-scoped: each Endpoint owns exactly one ObjectTable,
// and closing that Endpoint frees every LocalObject this side exported on
// it, since those ids have no meaning beyond this one connection.
type ObjectTable struct {
	mu sync.Mutex

	endpoint *Endpoint

	nextLocalID  uint32
	localObjects map[uint32]*LocalObject
	localIDs     map[*LocalObject]uint32

	remoteProxies map[uint32]*RemoteProxy
}

func newObjectTable(ep *Endpoint) *ObjectTable {
	return &ObjectTable{
		endpoint:      ep,
		nextLocalID:   objectIDBase,
		localObjects:  make(map[uint32]*LocalObject),
		localIDs:      make(map[*LocalObject]uint32),
		remoteProxies: make(map[uint32]*RemoteProxy),
	}
}

// RegisterGlobal exposes obj under the well-known global object id. Call
// this before the connection starts exchanging calls; registering a
// second global object replaces the first.
func (t *ObjectTable) RegisterGlobal(obj *LocalObject) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localObjects[globalObjectID] = obj
	t.localIDs[obj] = globalObjectID
}

// Register exposes obj under a freshly allocated id and returns it.
func (t *ObjectTable) Register(obj *LocalObject) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.localIDs[obj]; ok {
		return id
	}
	id := t.nextLocalID
	t.nextLocalID++
	t.localObjects[id] = obj
	t.localIDs[obj] = id
	return id
}

// Delete stops exposing the LocalObject registered under id. Further
// calls from the peer naming id fail with ErrUnknownObject.
func (t *ObjectTable) Delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if obj, ok := t.localObjects[id]; ok {
		delete(t.localIDs, obj)
	}
	delete(t.localObjects, id)
}

func (t *ObjectTable) lookupLocal(id uint32) (*LocalObject, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.localObjects[id]
	return obj, ok
}

// closeAll drops every LocalObject this side exported on the owning
// Endpoint and every RemoteProxy cached for the peer's objects. Called
// once, when the Endpoint itself is closing: none of these ids survive
// the connection that minted them.
func (t *ObjectTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localObjects = make(map[uint32]*LocalObject)
	t.localIDs = make(map[*LocalObject]uint32)
	for _, rp := range t.remoteProxies {
		runtime.SetFinalizer(rp, nil)
	}
	t.remoteProxies = make(map[uint32]*RemoteProxy)
}

// replacer implements variant.ObjectReplacer against this table: it is
// installed whenever this Endpoint packs a Variant tree (call arguments
// or a return value) bound for the peer.
func (t *ObjectTable) replacer(obj any) (uint32, error) {
	switch o := obj.(type) {
	case *LocalObject:
		return t.Register(o), nil
	case *RemoteProxy:
		if o.endpoint != t.endpoint {
			return 0, fmt.Errorf("duplex: RemoteProxy %d belongs to a different connection", o.id)
		}
		// Handing the peer back a handle to an object it already owns:
		// the id is meaningful to them as-is.
		return o.id, nil
	default:
		return 0, fmt.Errorf("duplex: cannot pack value of type %T as an object", obj)
	}
}

// resolver implements variant.IDResolver against this table: it is
// installed whenever this Endpoint unpacks a Variant tree received from
// the peer.
func (t *ObjectTable) resolver(id uint32) (any, error) {
	t.mu.Lock()
	if lo, ok := t.localObjects[id]; ok {
		t.mu.Unlock()
		return lo, nil
	}
	if rp, ok := t.remoteProxies[id]; ok {
		t.mu.Unlock()
		return rp, nil
	}
	rp := &RemoteProxy{endpoint: t.endpoint, id: id}
	t.remoteProxies[id] = rp
	t.mu.Unlock()

	runtime.SetFinalizer(rp, func(rp *RemoteProxy) { t.finalizeProxy(rp) })
	return rp, nil
}

// finalizeProxy runs when a RemoteProxy becomes unreachable from Go's
// point of view: the application no longer holds any reference to the
// peer's object, so this side tells the peer it can free its LocalObject.
func (t *ObjectTable) finalizeProxy(rp *RemoteProxy) {
	t.mu.Lock()
	if cur, ok := t.remoteProxies[rp.id]; ok && cur == rp {
		delete(t.remoteProxies, rp.id)
	}
	t.mu.Unlock()
	t.endpoint.sendDelObj([]uint32{rp.id})
}

// freePeerLocalObject handles an incoming DELOBJ: the peer no longer
// holds a RemoteProxy for one of our LocalObjects, so we stop exposing
// it.
func (t *ObjectTable) freePeerLocalObject(id uint32) {
	t.Delete(id)
}
