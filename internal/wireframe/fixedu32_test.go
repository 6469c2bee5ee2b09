// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wireframe_test

import (
	"bytes"
	"io"
	"testing"

	wf "code.hybscloud.com/duplex/internal/wireframe"
)

func TestFixedU32_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := wf.NewWriter(&buf, wf.WithFixedU32())

	msgs := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte("x"), 5000),
	}
	for _, m := range msgs {
		n, err := w.Write(m)
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		if n != len(m) {
			t.Fatalf("n=%d want=%d", n, len(m))
		}
	}

	r := wf.NewReader(&buf, wf.WithFixedU32())
	for i, want := range msgs {
		got := make([]byte, 8192)
		n, err := r.Read(got)
		if err != nil {
			t.Fatalf("read[%d]: %v", i, err)
		}
		if !bytes.Equal(got[:n], want) {
			t.Fatalf("read[%d]: got=%q want=%q", i, got[:n], want)
		}
	}
}

func TestFixedU32_HeaderIsExactlyFourBytes(t *testing.T) {
	var buf bytes.Buffer
	w := wf.NewWriter(&buf, wf.WithFixedU32())
	if _, err := w.Write([]byte("ab")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 4+2 {
		t.Fatalf("wire length=%d want=6 (4-byte header + 2-byte payload)", buf.Len())
	}
}

func TestFixedU32_ReadLimitEnforced(t *testing.T) {
	var buf bytes.Buffer
	w := wf.NewWriter(&buf, wf.WithFixedU32())
	if _, err := w.Write(bytes.Repeat([]byte("z"), 100)); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := wf.NewReader(&buf, wf.WithFixedU32(), wf.WithReadLimit(10))
	_, err := r.Read(make([]byte, 200))
	if err != wf.ErrTooLong {
		t.Fatalf("err=%v want ErrTooLong", err)
	}
}

func TestFixedU32_TruncatedHeaderIsUnexpectedEOF(t *testing.T) {
	r := wf.NewReader(bytes.NewReader([]byte{0, 0}), wf.WithFixedU32())
	_, err := r.Read(make([]byte, 16))
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v want io.ErrUnexpectedEOF", err)
	}
}
