// Copyright 2014 The go-ethereum Authors
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
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	errNotInList     = errors.New("rlp: call of ListEnd outside of any list")
	errUint256Large  = errors.New("rlp: value exceeds 256 bits")
	errInvalidBool   = errors.New("rlp: invalid boolean value")
	errStringTooLong = errors.New("rlp: input string too long")
	errStringShort   = errors.New("rlp: input string too short")
)

// Stream is a decoding cursor over a single RLP input held in memory.
//
// The Stream is strict: non-canonical size headers, integers with
// leading zeroes and elements overrunning their enclosing list are all
// rejected with a descriptive error, and the input position does not
// advance past a value that failed to decode.
//
// Stream is not safe for concurrent use.
type Stream struct {
	data []byte
	pos  uint64

	// stack holds the absolute end offsets of enclosing lists,
	// innermost last.
	stack []uint64

	// header cache for the value at the current position
	cached  bool
	kind    Kind
	size    uint64
	tagsize uint64
}

// NewStream creates a stream reading from the given buffer.
func NewStream(data []byte) *Stream {
	s := new(Stream)
	s.Reset(data)
	return s
}

// Reset discards all state and re-arms the stream on a new input.
func (s *Stream) Reset(data []byte) {
	s.data = data
	s.pos = 0
	s.stack = s.stack[:0]
	s.cached = false
}

// Remaining returns the number of bytes left to consume at the current
// nesting level.
func (s *Stream) Remaining() int {
	return int(s.limit() - s.pos)
}

// limit returns the absolute offset the cursor may not move past.
func (s *Stream) limit() uint64 {
	if len(s.stack) > 0 {
		return s.stack[len(s.stack)-1]
	}
	return uint64(len(s.data))
}

// Kind returns the kind and size of the next value in the stream.
// The returned size is the size of the value payload, excluding any
// type tag. Kind does not advance the input position.
//
// At the end of the innermost list, the error is EOL. At the end of the
// input, the error is io.EOF.
func (s *Stream) Kind() (Kind, uint64, error) {
	if err := s.peek(); err != nil {
		return 0, 0, err
	}
	return s.kind, s.size, nil
}

func (s *Stream) peek() error {
	if s.cached {
		return nil
	}
	end := s.limit()
	if s.pos == end {
		if len(s.stack) > 0 {
			return EOL
		}
		return io.EOF
	}
	k, tagsize, size, err := readKind(s.data[s.pos:end])
	if err != nil {
		if err == ErrValueTooLarge && len(s.stack) > 0 {
			// Distinguish element overruns of a list from overruns of
			// the whole input. The value may well fit the input, it
			// just doesn't fit the list that contains it.
			if fits := s.fitsInput(); fits {
				return ErrElemTooLarge
			}
		}
		return err
	}
	s.cached, s.kind, s.size, s.tagsize = true, k, size, tagsize
	return nil
}

func (s *Stream) fitsInput() bool {
	_, tagsize, size, err := readKind(s.data[s.pos:])
	return err == nil && s.pos+tagsize+size <= uint64(len(s.data))
}

// content returns the payload bytes of the current value. For Byte kind
// the payload is the tag byte itself.
func (s *Stream) content() []byte {
	return s.data[s.pos+s.tagsize : s.pos+s.tagsize+s.size]
}

// advance moves the cursor past the current value.
func (s *Stream) advance() {
	s.pos += s.tagsize + s.size
	s.cached = false
}

// Uint64 decodes an unsigned integer of at most 64 bits.
func (s *Stream) Uint64() (uint64, error) {
	return s.uint(64)
}

// Uint32 decodes an unsigned integer of at most 32 bits.
func (s *Stream) Uint32() (uint32, error) {
	v, err := s.uint(32)
	return uint32(v), err
}

// Uint16 decodes an unsigned integer of at most 16 bits.
func (s *Stream) Uint16() (uint16, error) {
	v, err := s.uint(16)
	return uint16(v), err
}

// Uint8 decodes an unsigned integer of at most 8 bits.
func (s *Stream) Uint8() (uint8, error) {
	v, err := s.uint(8)
	return uint8(v), err
}

func (s *Stream) uint(maxbits int) (uint64, error) {
	kind, size, err := s.Kind()
	if err != nil {
		return 0, err
	}
	switch kind {
	case Byte:
		b := s.data[s.pos]
		if b == 0 {
			return 0, ErrCanonInt
		}
		s.advance()
		return uint64(b), nil
	case String:
		if size > uint64(maxbits/8) {
			return 0, errUintOverflow
		}
		content := s.content()
		var v uint64
		switch size {
		case 0:
			v = 0
		case 1:
			// A single byte below 0x80 would have been Byte kind, so
			// this content is always >= 0x80 and cannot carry a
			// leading zero.
			v = uint64(content[0])
		default:
			if content[0] == 0 {
				return 0, ErrCanonInt
			}
			for _, b := range content {
				v = v<<8 | uint64(b)
			}
		}
		s.advance()
		return v, nil
	default:
		return 0, ErrExpectedString
	}
}

// Bool decodes a boolean, accepting the integers 0 and 1.
func (s *Stream) Bool() (bool, error) {
	num, err := s.uint(8)
	if err != nil {
		return false, err
	}
	switch num {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", errInvalidBool, num)
	}
}

// Bytes decodes the next value as a byte slice. The returned slice is a
// copy and remains valid after further stream use.
func (s *Stream) Bytes() ([]byte, error) {
	kind, _, err := s.Kind()
	if err != nil {
		return nil, err
	}
	if kind == List {
		return nil, ErrExpectedString
	}
	var b []byte
	if kind == Byte {
		b = []byte{s.data[s.pos]}
	} else {
		b = append([]byte(nil), s.content()...)
	}
	s.advance()
	return b, nil
}

// ReadBytes decodes the next value and stores the result in b, which
// must be exactly the size of the encoded payload.
func (s *Stream) ReadBytes(b []byte) error {
	kind, size, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case Byte:
		if len(b) != 1 {
			return errStringShort
		}
		b[0] = s.data[s.pos]
	case String:
		if uint64(len(b)) < size {
			return errStringTooLong
		}
		if uint64(len(b)) > size {
			return errStringShort
		}
		copy(b, s.content())
	default:
		return ErrExpectedString
	}
	s.advance()
	return nil
}

// Raw reads a raw encoded value including the RLP type information.
// The returned slice is a copy of the input.
func (s *Stream) Raw() (RawValue, error) {
	if _, _, err := s.Kind(); err != nil {
		return nil, err
	}
	var start, end uint64
	if s.kind == Byte {
		start, end = s.pos, s.pos+1
	} else {
		start, end = s.pos, s.pos+s.tagsize+s.size
	}
	raw := append(RawValue(nil), s.data[start:end]...)
	s.advance()
	return raw, nil
}

// BigInt decodes an arbitrary-length non-negative integer.
func (s *Stream) BigInt() (*big.Int, error) {
	i := new(big.Int)
	if err := s.ReadBigInt(i); err != nil {
		return nil, err
	}
	return i, nil
}

// ReadBigInt decodes into an existing big.Int.
func (s *Stream) ReadBigInt(dst *big.Int) error {
	b, err := s.intBytes()
	if err != nil {
		return err
	}
	dst.SetBytes(b)
	return nil
}

// ReadUint256 decodes an integer of at most 256 bits.
func (s *Stream) ReadUint256(dst *uint256.Int) error {
	b, err := s.intBytes()
	if err != nil {
		return err
	}
	if len(b) > 32 {
		return errUint256Large
	}
	dst.SetBytes(b)
	return nil
}

// intBytes reads the payload of an arbitrary-width integer without
// copying, applying the canonical-integer checks.
func (s *Stream) intBytes() ([]byte, error) {
	kind, size, err := s.Kind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case Byte:
		if s.data[s.pos] == 0 {
			return nil, ErrCanonInt
		}
		b := s.data[s.pos : s.pos+1]
		s.advance()
		return b, nil
	case String:
		content := s.content()
		if size > 0 && content[0] == 0 {
			return nil, ErrCanonInt
		}
		s.advance()
		return content, nil
	default:
		return nil, ErrExpectedString
	}
}

// Float64Bits decodes an unsigned integer and reinterprets its bit
// pattern as an IEEE 754 double. It is the inverse of
// EncoderBuffer.WriteFloat64Bits.
func (s *Stream) Float64Bits() (float64, error) {
	v, err := s.uint(64)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// List starts decoding an RLP list. If the input does not contain a
// list, the returned error will be ErrExpectedList. When the list's end
// has been reached, any Stream operation will return EOL until ListEnd
// is called.
func (s *Stream) List() (size uint64, err error) {
	kind, size, err := s.Kind()
	if err != nil {
		return 0, err
	}
	if kind != List {
		return 0, ErrExpectedList
	}
	s.stack = append(s.stack, s.pos+s.tagsize+s.size)
	s.pos += s.tagsize
	s.cached = false
	return size, nil
}

// TryList enters a list if the next value is one and reports whether it
// did. A non-list value, EOL and EOF all leave the stream untouched and
// return false; only malformed input produces an error.
func (s *Stream) TryList() (bool, error) {
	kind, _, err := s.Kind()
	if err == EOL || err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if kind != List {
		return false, nil
	}
	if _, err := s.List(); err != nil {
		return false, err
	}
	return true, nil
}

// ListEnd returns to the enclosing list. The input position must be at
// the end of the current list.
func (s *Stream) ListEnd() error {
	if len(s.stack) == 0 {
		return errNotInList
	}
	end := s.stack[len(s.stack)-1]
	if s.pos != end {
		return errNotAtEOL
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.cached = false
	return nil
}

// MoreDataInList reports whether the current list context contains
// more data to be read.
func (s *Stream) MoreDataInList() bool {
	return len(s.stack) > 0 && s.pos < s.stack[len(s.stack)-1]
}

// Skip advances over the next value without decoding it.
func (s *Stream) Skip() error {
	if _, _, err := s.Kind(); err != nil {
		return err
	}
	s.advance()
	return nil
}

// Decode decodes a value and stores the result in the value pointed
// to by val. Please see the documentation for the Decode function
// to learn about the decoding rules.
func (s *Stream) Decode(val interface{}) error {
	return decodeValue(s, val)
}
