// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package variant implements the tagged-union value tree that flows over
// the duplex wire: requests, results, and the object handles embedded in
// either.
//
// A Value is always one of the tags below. Null is the zero value, so an
// uninitialized Value is already well-formed. Object and Future payloads are
// local-process-only: an Object is packed as the id an ObjectReplacer
// supplies (ErrNoReplacer without one), and packing a Future is a
// programming error (ErrNotWireLegal), never a wire-level failure of the
// peer's making.
package variant

import "fmt"

// Tag identifies the concrete shape held by a Value. Numeric values match
// the on-wire tag byte exactly (see Pack/Unpack in pack.go and unpack.go).
type Tag uint8

const (
	Null Tag = iota
	Int
	Real
	String
	Array
	Map
	Exception
	Object
	ObjectID
	FutureTag
	Packed
)

func (t Tag) String() string {
	switch t {
	case Null:
		return "Null"
	case Int:
		return "Int"
	case Real:
		return "Real"
	case String:
		return "String"
	case Array:
		return "Array"
	case Map:
		return "Map"
	case Exception:
		return "Exception"
	case Object:
		return "Object"
	case ObjectID:
		return "ObjectID"
	case FutureTag:
		return "Future"
	case Packed:
		return "Packed"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Value is a tagged union. The zero Value is Null.
type Value struct {
	tag Tag

	i64 int64
	f64 float64
	str []byte
	arr []Value
	mp  map[string]Value
	id  uint32
	obj any
	fut any
}

// NewNull returns the Null value.
func NewNull() Value { return Value{tag: Null} }

// NewInt returns an Int value.
func NewInt(v int64) Value { return Value{tag: Int, i64: v} }

// NewReal returns a Real value.
func NewReal(v float64) Value { return Value{tag: Real, f64: v} }

// NewString returns a String value wrapping the given bytes. The bytes are
// stored as-is; no particular encoding is assumed or enforced.
func NewString(b []byte) Value { return Value{tag: String, str: b} }

// NewStringFromString is a convenience wrapper around NewString.
func NewStringFromString(s string) Value { return Value{tag: String, str: []byte(s)} }

// NewArray returns an Array value.
func NewArray(vs []Value) Value { return Value{tag: Array, arr: vs} }

// NewMap returns a Map value. Keys must be unique and at most 255 bytes;
// this is enforced at Pack time, not at construction.
func NewMap(m map[string]Value) Value { return Value{tag: Map, mp: m} }

// NewException returns an Exception value carrying a textual message.
func NewException(msg string) Value { return Value{tag: Exception, str: []byte(msg)} }

// NewExceptionBytes is like NewException but takes raw bytes.
func NewExceptionBytes(msg []byte) Value { return Value{tag: Exception, str: msg} }

// NewObjectID returns the on-wire projection of an object handle: a bare
// numeric id with no attached local dispatcher. Applications rarely
// construct this directly — it is what Unpack produces when no IDResolver
// is installed, and what Pack produces internally after replacing an
// Object.
func NewObjectID(id uint32) Value { return Value{tag: ObjectID, id: id} }

// NewObject wraps an opaque local-object handle (normally a
// *duplex.LocalObject or *duplex.RemoteProxy) for transport through a
// Variant tree. variant never inspects obj; it only forwards it to the
// ObjectReplacer at Pack time.
func NewObject(obj any) Value { return Value{tag: Object, obj: obj} }

// NewFuture wraps an opaque deferred-result handle (normally a
// *future.Future[Value]). Like Object, this tag is illegal on the wire.
func NewFuture(fut any) Value { return Value{tag: FutureTag, fut: fut} }

// NewPacked wraps raw pre-encoded bytes as an intermediate, in-memory-only
// form. Illegal on the wire.
func NewPacked(b []byte) Value { return Value{tag: Packed, str: b} }

// Tag reports the concrete shape of v.
func (v Value) Tag() Tag { return v.tag }

// IsException reports whether v is in the Exception state. This is the
// single method the future package needs from a chained value.
func (v Value) IsException() bool { return v.tag == Exception }

// Int returns the Int payload, or (0, false) if v is not an Int.
func (v Value) Int() (int64, bool) {
	if v.tag != Int {
		return 0, false
	}
	return v.i64, true
}

// Real returns the Real payload, or (0, false) if v is not a Real.
func (v Value) Real() (float64, bool) {
	if v.tag != Real {
		return 0, false
	}
	return v.f64, true
}

// Bytes returns the raw bytes of a String, Exception, or Packed value.
func (v Value) Bytes() ([]byte, bool) {
	switch v.tag {
	case String, Exception, Packed:
		return v.str, true
	default:
		return nil, false
	}
}

// Text is a convenience wrapper around Bytes for String and Exception
// values.
func (v Value) Text() (string, bool) {
	b, ok := v.Bytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// ExceptionText returns the Exception message, or ("", false) if v is not
// an Exception.
func (v Value) ExceptionText() (string, bool) {
	if v.tag != Exception {
		return "", false
	}
	return string(v.str), true
}

// Array returns the Array payload, or (nil, false) if v is not an Array.
func (v Value) Array() ([]Value, bool) {
	if v.tag != Array {
		return nil, false
	}
	return v.arr, true
}

// Map returns the Map payload, or (nil, false) if v is not a Map.
func (v Value) Map() (map[string]Value, bool) {
	if v.tag != Map {
		return nil, false
	}
	return v.mp, true
}

// ObjectID returns the ObjectID payload, or (0, false) if v is not an
// ObjectID.
func (v Value) ObjectID() (uint32, bool) {
	if v.tag != ObjectID {
		return 0, false
	}
	return v.id, true
}

// Object returns the opaque handle carried by an Object value, or
// (nil, false) if v is not an Object.
func (v Value) Object() (any, bool) {
	if v.tag != Object {
		return nil, false
	}
	return v.obj, true
}

// FutureHandle returns the opaque handle carried by a Future value, or
// (nil, false) if v is not a Future.
func (v Value) FutureHandle() (any, bool) {
	if v.tag != FutureTag {
		return nil, false
	}
	return v.fut, true
}

// Equal reports whether v and other describe the same value tree. Map
// comparison ignores iteration order (Go maps have none to begin with);
// Object and Future compare by tag only since their payloads are opaque;
// Packed compares its raw bytes.
func (v Value) Equal(other Value) bool {
	if v.tag != other.tag {
		return false
	}
	switch v.tag {
	case Null:
		return true
	case Int:
		return v.i64 == other.i64
	case Real:
		return v.f64 == other.f64
	case String, Exception, Packed:
		return bytesEqual(v.str, other.str)
	case Array:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.mp) != len(other.mp) {
			return false
		}
		for k, vv := range v.mp {
			ov, ok := other.mp[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	case ObjectID:
		return v.id == other.id
	case Object, FutureTag:
		return true
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
