// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package variant

import "errors"

var (
	// ErrNotWireLegal reports an attempt to pack a Future or Packed value,
	// or an Object, Future, or Packed tag found on unpack. An Object value
	// is packed through the ObjectReplacer instead (ErrNoReplacer if none).
	ErrNotWireLegal = errors.New("variant: tag is not legal on the wire")

	// ErrUnknownTag reports an unrecognized tag byte during Unpack.
	ErrUnknownTag = errors.New("variant: unknown wire tag")

	// ErrKeyTooLong reports a map key exceeding the 255-byte wire limit.
	ErrKeyTooLong = errors.New("variant: map key exceeds 255 bytes")

	// ErrDuplicateKey reports two equal map keys on unpack, violating the
	// "keys unique" invariant.
	ErrDuplicateKey = errors.New("variant: duplicate map key")

	// ErrNoReplacer reports an attempt to pack an Object value without an
	// ObjectReplacer installed: there is no way to turn the local handle
	// into an on-wire id.
	ErrNoReplacer = errors.New("variant: Object value with no ObjectReplacer installed")

	// ErrTruncated reports a short read while unpacking a fixed-width or
	// length-prefixed field.
	ErrTruncated = errors.New("variant: truncated input")
)
