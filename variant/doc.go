// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package variant implements the tagged-union value tree exchanged by the
// duplex RPC transport.
//
// Wire format (little-endian throughout): a tag byte followed by a
// tag-specific payload. Null has no payload. Int and Real are 8 fixed
// bytes. String and Exception are a u32 length followed by that many
// bytes. Array is a u32 count followed by that many encoded elements. Map
// is a u32 count followed by that many (u8 key-length, key bytes, encoded
// value) triples; keys must be unique and at most 255 bytes. ObjectID is a
// u32. Object, Future, and Packed never appear on the wire — an Object is
// packed as the ObjectID its ObjectReplacer returns (ErrNoReplacer if
// none is installed), and packing a Future or Packed is ErrNotWireLegal.
package variant
