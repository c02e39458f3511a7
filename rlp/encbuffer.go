// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rlp

import (
	"errors"
	"io"
	"math"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// errUnclosedList is returned by Finish when a declared list has not
// received all of its items yet.
var errUnclosedList = errors.New("rlp: unclosed list")

// pendingList tracks a list whose length was declared up front but whose
// items have not all been written yet. The header is spliced into the
// output buffer when the final item arrives.
type pendingList struct {
	remaining int // items still expected
	start     int // offset of the list payload in buf
}

// EncoderBuffer is a buffer for incremental encoding.
//
// Lists are written by declaring their item count with List and then
// writing exactly that many items. The list header is inserted
// automatically when the last declared item has been written, so the
// caller never closes a list explicitly. Nested lists count as a single
// item of their enclosing list.
//
// The zero value is NOT ready for use. To get a usable buffer,
// create it using NewEncoderBuffer or call Reset.
type EncoderBuffer struct {
	buf     []byte
	pending []pendingList
	sizebuf [9]byte // auxiliary buffer for size encoding
}

// The global encoder buffer pool.
var encBufferPool = sync.Pool{
	New: func() interface{} { return new(EncoderBuffer) },
}

func getEncBuffer() *EncoderBuffer {
	buf := encBufferPool.Get().(*EncoderBuffer)
	buf.Reset()
	return buf
}

// NewEncoderBuffer returns a fresh encoder buffer.
func NewEncoderBuffer() *EncoderBuffer {
	buf := new(EncoderBuffer)
	buf.Reset()
	return buf
}

// Reset truncates the buffer and forgets all pending lists.
func (w *EncoderBuffer) Reset() {
	w.buf = w.buf[:0]
	w.pending = w.pending[:0]
}

// Size returns the length of the encoded data so far, including the
// headers of lists that are already sealed.
func (w *EncoderBuffer) Size() int {
	return len(w.buf)
}

// Finish returns the encoded output. It is an error to call Finish
// while a declared list is still missing items.
func (w *EncoderBuffer) Finish() ([]byte, error) {
	if len(w.pending) > 0 {
		return nil, errUnclosedList
	}
	return w.buf, nil
}

// List declares a list of n items. For n > 0 the header is written once
// the n-th item arrives; an empty list is emitted immediately.
func (w *EncoderBuffer) List(n int) {
	if n < 0 {
		panic("rlp: negative list length")
	}
	if n == 0 {
		w.buf = append(w.buf, 0xC0)
		w.itemDone()
		return
	}
	w.pending = append(w.pending, pendingList{remaining: n, start: len(w.buf)})
}

// itemDone accounts one completed item against the innermost pending
// list, sealing lists as they fill up. A sealed list is itself an item
// of the enclosing list, so sealing cascades outward.
func (w *EncoderBuffer) itemDone() {
	for len(w.pending) > 0 {
		top := &w.pending[len(w.pending)-1]
		top.remaining--
		if top.remaining > 0 {
			return
		}
		w.sealList(top.start)
		w.pending = w.pending[:len(w.pending)-1]
	}
}

// sealList splices the header of the list starting at 'start' into the
// buffer, shifting the payload right to make room.
func (w *EncoderBuffer) sealList(start int) {
	size := len(w.buf) - start
	if size < 56 {
		w.buf = append(w.buf, 0)
		copy(w.buf[start+1:], w.buf[start:])
		w.buf[start] = 0xC0 + byte(size)
		return
	}
	sizesize := putint(w.sizebuf[:], uint64(size))
	w.buf = append(w.buf, w.sizebuf[:sizesize+1]...)
	copy(w.buf[start+sizesize+1:], w.buf[start:start+size])
	w.buf[start] = 0xF7 + byte(sizesize)
	copy(w.buf[start+1:], w.sizebuf[:sizesize])
}

// WriteUint64 writes an unsigned integer. Zero encodes as the empty
// string 0x80.
func (w *EncoderBuffer) WriteUint64(i uint64) {
	w.buf = AppendUint64(w.buf, i)
	w.itemDone()
}

// WriteBool writes b as the integer 0 (false) or 1 (true).
func (w *EncoderBuffer) WriteBool(b bool) {
	if b {
		w.buf = append(w.buf, 0x01)
	} else {
		w.buf = append(w.buf, 0x80)
	}
	w.itemDone()
}

// WriteBytes writes b as an RLP string.
func (w *EncoderBuffer) WriteBytes(b []byte) {
	w.appendBlob(b)
	w.itemDone()
}

// WriteString writes s as an RLP string.
func (w *EncoderBuffer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

func (w *EncoderBuffer) appendBlob(b []byte) {
	if len(b) == 1 && b[0] <= 0x7F {
		// fits single byte, no string header
		w.buf = append(w.buf, b[0])
		return
	}
	w.appendBlobHeader(len(b))
	w.buf = append(w.buf, b...)
}

func (w *EncoderBuffer) appendBlobHeader(size int) {
	if size < 56 {
		w.buf = append(w.buf, 0x80+byte(size))
	} else {
		sizesize := putint(w.sizebuf[1:], uint64(size))
		w.sizebuf[0] = 0xB7 + byte(sizesize)
		w.buf = append(w.buf, w.sizebuf[:sizesize+1]...)
	}
}

// wordBytes is the number of bytes in a big.Word.
const wordBytes = (32 << (uint64(^big.Word(0)) >> 63)) / 8

// WriteBigInt writes i as an RLP string. i must not be negative.
func (w *EncoderBuffer) WriteBigInt(i *big.Int) {
	bitlen := i.BitLen()
	if bitlen <= 64 {
		w.WriteUint64(i.Uint64())
		return
	}
	// Integer is larger than 64 bits, encode from i.Bits().
	// The minimal byte length is bitlen rounded up to the next
	// multiple of 8, divided by 8.
	length := ((bitlen + 7) & -8) >> 3
	w.appendBlobHeader(length)
	index := length
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, length)...)
	bytesBuf := w.buf[start:]
	for _, d := range i.Bits() {
		for j := 0; j < wordBytes && index > 0; j++ {
			index--
			bytesBuf[index] = byte(d)
			d >>= 8
		}
	}
	w.itemDone()
}

// WriteUint256 writes z as an RLP string.
func (w *EncoderBuffer) WriteUint256(z *uint256.Int) {
	bitlen := z.BitLen()
	if bitlen <= 64 {
		w.WriteUint64(z.Uint64())
		return
	}
	nBytes := byte((bitlen + 7) / 8)
	var b [33]byte
	z.WriteToArray32((*[32]byte)(b[1:]))
	b[32-nBytes] = 0x80 + nBytes
	w.buf = append(w.buf, b[32-nBytes:]...)
	w.itemDone()
}

// WriteFloat64Bits writes the IEEE 754 bit pattern of f as an unsigned
// integer. This is the only sanctioned way to put a float on the wire;
// there is no native RLP float type.
func (w *EncoderBuffer) WriteFloat64Bits(f float64) {
	w.WriteUint64(math.Float64bits(f))
}

// WriteRaw appends v, which must contain exactly one encoded value,
// without further processing.
func (w *EncoderBuffer) WriteRaw(v []byte) {
	w.buf = append(w.buf, v...)
	w.itemDone()
}

// WriteValue encodes val using reflection and writes it as one item.
func (w *EncoderBuffer) WriteValue(val interface{}) error {
	return encodeValue(w, val)
}

// encWriter adapts EncoderBuffer to io.Writer for types implementing
// the Encoder interface. Bytes written through it are appended raw;
// the caller accounts them as a single item after EncodeRLP returns.
type encWriter struct {
	buf *EncoderBuffer
}

func (e encWriter) Write(b []byte) (int, error) {
	e.buf.buf = append(e.buf.buf, b...)
	return len(b), nil
}

var _ io.Writer = encWriter{}
