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

// Package rlp implements the RLP serialization format.
//
// The purpose of RLP (Recursive Linear Prefix) is to encode arbitrarily nested
// arrays of binary data, and RLP is the main encoding method used to serialize
// objects in Ethereum. The only purpose of RLP is to encode structure; encoding
// specific atomic data types (eg. strings, ints, floats) is left up to higher-order
// protocols. In Ethereum integers must be represented in big endian binary form
// with no leading zeroes (thus making the integer value zero equivalent to the
// empty string).
//
// Encoding is available through an EncoderBuffer, an incremental writer with
// declared-length lists, or through the reflection-driven Encode functions which
// handle Go structs and slices. Decoding goes through Stream, a cursor over an
// encoded input, or the matching DecodeBytes entry point.
package rlp

import (
	"errors"
	"fmt"
	"io"
	"reflect"
)

// Kind represents the kind of value contained in an RLP stream.
type Kind int8

const (
	Byte Kind = iota
	String
	List
)

func (k Kind) String() string {
	switch k {
	case Byte:
		return "Byte"
	case String:
		return "String"
	case List:
		return "List"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

var (
	// EOL is returned when the end of the current list
	// has been reached during streaming.
	EOL = errors.New("rlp: end of list")

	ErrExpectedString = errors.New("rlp: expected String or Byte")
	ErrExpectedList   = errors.New("rlp: expected List")
	ErrCanonInt       = errors.New("rlp: non-canonical integer format")
	ErrCanonSize      = errors.New("rlp: non-canonical size information")
	ErrElemTooLarge   = errors.New("rlp: element is larger than containing list")
	ErrValueTooLarge  = errors.New("rlp: value size exceeds available input length")

	errUintOverflow = errors.New("rlp: uint overflow")
	errNotAtEOL     = errors.New("rlp: call of ListEnd not positioned at EOL")
)

// RawValue represents an encoded RLP value and can be used to delay
// RLP decoding or to precompute an encoding. Note that the decoder does
// not verify whether the content of RawValues is valid RLP.
type RawValue []byte

var rawValueType = reflect.TypeOf(RawValue{})

// Encoder is implemented by types that require custom
// encoding rules or want to encode private fields.
type Encoder interface {
	// EncodeRLP should write the RLP encoding of its receiver to w.
	// If the implementation is a pointer method, it may also be
	// called for nil pointers.
	EncodeRLP(io.Writer) error
}

// Decoder is implemented by types that require custom RLP decoding rules
// or need to decode into private fields.
//
// The DecodeRLP method should read one value from the given Stream. It is
// not forbidden to read less or more, but it might be confusing.
type Decoder interface {
	DecodeRLP(*Stream) error
}

// Encode writes the RLP encoding of val to w.
//
// Please see package-level documentation of encoding rules.
func Encode(w io.Writer, val interface{}) error {
	buf := getEncBuffer()
	defer encBufferPool.Put(buf)

	if err := buf.WriteValue(val); err != nil {
		return err
	}
	enc, err := buf.Finish()
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// EncodeToBytes returns the RLP encoding of val.
//
// Please see package-level documentation for the encoding rules.
func EncodeToBytes(val interface{}) ([]byte, error) {
	buf := getEncBuffer()
	defer encBufferPool.Put(buf)

	if err := buf.WriteValue(val); err != nil {
		return nil, err
	}
	enc, err := buf.Finish()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), enc...), nil
}

// DecodeBytes parses RLP data from b into val. The input must contain exactly
// one value and no trailing data.
func DecodeBytes(b []byte, val interface{}) error {
	s := NewStream(b)
	if err := s.Decode(val); err != nil {
		return err
	}
	if s.Remaining() > 0 {
		return ErrMoreThanOneValue
	}
	return nil
}

// ErrMoreThanOneValue is returned by DecodeBytes when the input
// contains more than one value.
var ErrMoreThanOneValue = errors.New("rlp: input contains more than one value")
