// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"encoding/binary"
	"fmt"
	"io"

	"code.hybscloud.com/duplex/variant"
)

// msgType identifies the shape of one RPC frame. Values 0 and 1 are
// reserved for the idle keepalive exchange; the rest are the call/return
// lifecycle.
type msgType uint8

const (
	msgPing     msgType = 0
	msgPong     msgType = 1
	msgCallProc msgType = 10 // call with no return value expected
	msgCallFunc msgType = 11 // call with a return value expected
	msgReturn   msgType = 20
	msgDelObj   msgType = 30
)

func (t msgType) String() string {
	switch t {
	case msgPing:
		return "PING"
	case msgPong:
		return "PONG"
	case msgCallProc:
		return "CALL_PROC"
	case msgCallFunc:
		return "CALL_FUNC"
	case msgReturn:
		return "RETURN"
	case msgDelObj:
		return "DELOBJ"
	default:
		return fmt.Sprintf("msgType(%d)", uint8(t))
	}
}

// callFrame is the body of a CALL_PROC or CALL_FUNC frame: invoke method
// on objectID with args, optionally replying on reqID.
type callFrame struct {
	reqID    uint32
	objectID uint32
	method   string
	args     variant.Value
}

// returnFrame is the body of a RETURN frame answering reqID.
type returnFrame struct {
	reqID  uint32
	result variant.Value
}

// delObjFrame is the body of a DELOBJ frame: the sender no longer holds
// any RemoteProxy for these object ids and the owner may free them.
type delObjFrame struct {
	ids []uint32
}

func encodeCall(t msgType, reqID, objectID uint32, method string, args variant.Value, replacer variant.ObjectReplacer) ([]byte, error) {
	if len(method) > 1<<16-1 {
		return nil, fmt.Errorf("duplex: method name %q too long", method)
	}
	argBytes, err := variant.PackWith(args, replacer)
	if err != nil {
		return nil, fmt.Errorf("duplex: encoding call args: %w", err)
	}

	buf := make([]byte, 0, 1+4+4+2+len(method)+len(argBytes))
	buf = append(buf, byte(t))
	buf = appendU32(buf, reqID)
	buf = appendU32(buf, objectID)
	buf = appendU16(buf, uint16(len(method)))
	buf = append(buf, method...)
	buf = append(buf, argBytes...)
	return buf, nil
}

func decodeCall(t msgType, body []byte, resolver variant.IDResolver) (callFrame, error) {
	d := &byteCursor{buf: body}
	reqID, err := d.u32()
	if err != nil {
		return callFrame{}, err
	}
	objectID, err := d.u32()
	if err != nil {
		return callFrame{}, err
	}
	mlen, err := d.u16()
	if err != nil {
		return callFrame{}, err
	}
	methodBytes, err := d.take(int(mlen))
	if err != nil {
		return callFrame{}, err
	}
	args, n, err := variant.UnpackWith(d.rest(), resolver)
	if err != nil {
		return callFrame{}, fmt.Errorf("duplex: decoding %s args: %w", t, err)
	}
	d.off += n
	return callFrame{reqID: reqID, objectID: objectID, method: string(methodBytes), args: args}, nil
}

func encodeReturn(reqID uint32, result variant.Value, replacer variant.ObjectReplacer) ([]byte, error) {
	resultBytes, err := variant.PackWith(result, replacer)
	if err != nil {
		return nil, fmt.Errorf("duplex: encoding return value: %w", err)
	}
	buf := make([]byte, 0, 1+4+len(resultBytes))
	buf = append(buf, byte(msgReturn))
	buf = appendU32(buf, reqID)
	buf = append(buf, resultBytes...)
	return buf, nil
}

func decodeReturn(body []byte, resolver variant.IDResolver) (returnFrame, error) {
	d := &byteCursor{buf: body}
	reqID, err := d.u32()
	if err != nil {
		return returnFrame{}, err
	}
	result, _, err := variant.UnpackWith(d.rest(), resolver)
	if err != nil {
		return returnFrame{}, fmt.Errorf("duplex: decoding return value: %w", err)
	}
	return returnFrame{reqID: reqID, result: result}, nil
}

func encodeDelObj(ids []uint32) []byte {
	buf := make([]byte, 0, 1+4+4*len(ids))
	buf = append(buf, byte(msgDelObj))
	buf = appendU32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = appendU32(buf, id)
	}
	return buf
}

func decodeDelObj(body []byte) (delObjFrame, error) {
	d := &byteCursor{buf: body}
	n, err := d.u32()
	if err != nil {
		return delObjFrame{}, err
	}
	ids := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := d.u32()
		if err != nil {
			return delObjFrame{}, err
		}
		ids = append(ids, id)
	}
	return delObjFrame{ids: ids}, nil
}

func encodePing() []byte { return []byte{byte(msgPing)} }
func encodePong() []byte { return []byte{byte(msgPong)} }

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// byteCursor is a tiny shared decode helper for the fixed-field prefixes of
// each message shape; the Variant payload itself is decoded by
// variant.Unpack once the cursor reaches it.
type byteCursor struct {
	buf []byte
	off int
}

func (c *byteCursor) rest() []byte { return c.buf[c.off:] }

func (c *byteCursor) take(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *byteCursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *byteCursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
