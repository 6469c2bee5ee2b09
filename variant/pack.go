// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package variant

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ObjectReplacer turns a local object handle carried by an Object value
// into its on-wire id. Installed by duplex's ObjectTable at Pack time; it
// never appears in variant's own tests as anything but a func literal, so
// the package never needs to import duplex.
type ObjectReplacer func(obj any) (id uint32, err error)

// Pack encodes v into its wire representation. replacer is consulted for
// every Object value encountered during the traversal; it may be nil if
// the tree is known to contain no Object values, in which case encountering
// one is reported as ErrNoReplacer rather than silently dropped.
//
// Packing a Future or Packed value is always an error: both are
// local-process-only intermediate forms.
func Pack(v Value) ([]byte, error) {
	return PackWith(v, nil)
}

// PackWith is Pack with an explicit ObjectReplacer.
func PackWith(v Value, replacer ObjectReplacer) ([]byte, error) {
	var buf bytes.Buffer
	if err := packInto(&buf, v, replacer); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func packInto(buf *bytes.Buffer, v Value, replacer ObjectReplacer) error {
	switch v.tag {
	case Null:
		buf.WriteByte(byte(Null))
		return nil

	case Int:
		buf.WriteByte(byte(Int))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.i64))
		buf.Write(tmp[:])
		return nil

	case Real:
		buf.WriteByte(byte(Real))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.f64))
		buf.Write(tmp[:])
		return nil

	case String:
		buf.WriteByte(byte(String))
		return packLenBytes(buf, v.str)

	case Exception:
		buf.WriteByte(byte(Exception))
		return packLenBytes(buf, v.str)

	case Array:
		buf.WriteByte(byte(Array))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v.arr)))
		buf.Write(tmp[:])
		for _, elem := range v.arr {
			if err := packInto(buf, elem, replacer); err != nil {
				return err
			}
		}
		return nil

	case Map:
		buf.WriteByte(byte(Map))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v.mp)))
		buf.Write(tmp[:])
		for k, mv := range v.mp {
			kb := []byte(k)
			if len(kb) > 255 {
				return fmt.Errorf("%w: key %q is %d bytes", ErrKeyTooLong, k, len(kb))
			}
			buf.WriteByte(byte(len(kb)))
			buf.Write(kb)
			if err := packInto(buf, mv, replacer); err != nil {
				return err
			}
		}
		return nil

	case ObjectID:
		buf.WriteByte(byte(ObjectID))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v.id)
		buf.Write(tmp[:])
		return nil

	case Object:
		if replacer == nil {
			return ErrNoReplacer
		}
		id, err := replacer(v.obj)
		if err != nil {
			return fmt.Errorf("variant: replacing object: %w", err)
		}
		buf.WriteByte(byte(ObjectID))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], id)
		buf.Write(tmp[:])
		return nil

	case FutureTag, Packed:
		return fmt.Errorf("%w: %s", ErrNotWireLegal, v.tag)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownTag, v.tag)
	}
}

func packLenBytes(buf *bytes.Buffer, b []byte) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(b)))
	buf.Write(tmp[:])
	buf.Write(b)
	return nil
}
