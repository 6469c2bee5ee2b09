// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package variant

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// IDResolver turns an on-wire object id back into a live local handle
// (normally a *duplex.RemoteProxy). Installed by duplex's ObjectTable at
// Unpack time. If nil, ObjectID values are left as bare ObjectID values
// rather than resolved to Object values.
type IDResolver func(id uint32) (obj any, err error)

// Unpack decodes a single Value from the front of b, returning the value
// and the number of bytes consumed.
func Unpack(b []byte) (Value, int, error) {
	return UnpackWith(b, nil)
}

// UnpackWith is Unpack with an explicit IDResolver.
func UnpackWith(b []byte, resolver IDResolver) (Value, int, error) {
	d := &decoder{buf: b, resolver: resolver}
	v, err := d.value()
	if err != nil {
		return Value{}, 0, err
	}
	return v, d.off, nil
}

type decoder struct {
	buf      []byte
	off      int
	resolver IDResolver
}

func (d *decoder) value() (Value, error) {
	tagByte, err := d.byte()
	if err != nil {
		return Value{}, err
	}
	tag := Tag(tagByte)
	switch tag {
	case Null:
		return NewNull(), nil

	case Int:
		u, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return NewInt(int64(u)), nil

	case Real:
		u, err := d.u64()
		if err != nil {
			return Value{}, err
		}
		return NewReal(math.Float64frombits(u)), nil

	case String:
		b, err := d.lenBytes()
		if err != nil {
			return Value{}, err
		}
		return NewString(b), nil

	case Exception:
		b, err := d.lenBytes()
		if err != nil {
			return Value{}, err
		}
		return NewExceptionBytes(b), nil

	case Array:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		arr := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			elem, err := d.value()
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, elem)
		}
		return NewArray(arr), nil

	case Map:
		n, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		mp := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			klen, err := d.byte()
			if err != nil {
				return Value{}, err
			}
			kb, err := d.take(int(klen))
			if err != nil {
				return Value{}, err
			}
			k := string(kb)
			if _, dup := mp[k]; dup {
				return Value{}, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
			}
			mv, err := d.value()
			if err != nil {
				return Value{}, err
			}
			mp[k] = mv
		}
		return NewMap(mp), nil

	case ObjectID:
		id, err := d.u32()
		if err != nil {
			return Value{}, err
		}
		if d.resolver != nil {
			obj, err := d.resolver(id)
			if err != nil {
				return Value{}, fmt.Errorf("variant: resolving object id %d: %w", id, err)
			}
			return NewObject(obj), nil
		}
		return NewObjectID(id), nil

	case Object, FutureTag, Packed:
		return Value{}, fmt.Errorf("%w: %s", ErrNotWireLegal, tag)

	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownTag, tagByte)
	}
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, fmt.Errorf("%w: %w", ErrTruncated, io.ErrUnexpectedEOF)
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, io.ErrUnexpectedEOF)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) lenBytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	return d.take(int(n))
}
