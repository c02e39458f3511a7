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
	"math/big"
	"reflect"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

// The reflection-driven codec maps Go values to RLP as follows:
//
//   - unsigned integers and booleans become integers
//   - strings, byte slices and byte arrays become RLP strings
//   - other slices, arrays and structs become lists
//   - pointers encode their element, with nil standing in for the
//     empty value of the element's kind
//
// Struct fields may carry an `rlp:"..."` tag: "-" skips the field,
// "optional" allows the field (and all fields after it) to be absent
// from the input list, and "tail" flattens the remaining list elements
// into the final slice field.

var (
	errNoPointer     = errors.New("rlp: interface given to Decode must be a pointer")
	errDecodeIntoNil = errors.New("rlp: pointer given to Decode must not be nil")
	errEncodeNil     = errors.New("rlp: cannot encode nil interface value")

	encoderInterface = reflect.TypeOf(new(Encoder)).Elem()
	decoderInterface = reflect.TypeOf(new(Decoder)).Elem()
	bigIntType       = reflect.TypeOf(big.Int{})
	bigIntPtrType    = reflect.PtrTo(bigIntType)
	u256Type         = reflect.TypeOf(uint256.Int{})
	u256PtrType      = reflect.PtrTo(u256Type)
)

type writer func(w *EncoderBuffer, rv reflect.Value) error

type decoderFn func(s *Stream, rv reflect.Value) error

type typeinfo struct {
	encoder writer
	decoder decoderFn
	err     error
}

var (
	typeCacheMutex sync.RWMutex
	typeCache      = make(map[reflect.Type]*typeinfo)
)

func cachedTypeInfo(typ reflect.Type) (*typeinfo, error) {
	typeCacheMutex.RLock()
	info := typeCache[typ]
	typeCacheMutex.RUnlock()
	if info != nil {
		return info, info.err
	}
	typeCacheMutex.Lock()
	defer typeCacheMutex.Unlock()
	return cachedTypeInfoLocked(typ)
}

// cachedTypeInfoLocked requires the write lock. The placeholder entry
// is registered before generation so that recursive types resolve to
// the entry under construction; its function fields are read through
// the pointer at encode/decode time, after generation has finished.
func cachedTypeInfoLocked(typ reflect.Type) (*typeinfo, error) {
	if info := typeCache[typ]; info != nil {
		return info, info.err
	}
	info := new(typeinfo)
	typeCache[typ] = info
	info.encoder, info.err = makeWriter(typ)
	if info.err == nil {
		info.decoder, info.err = makeDecoder(typ)
	}
	return info, info.err
}

func encodeValue(w *EncoderBuffer, val interface{}) error {
	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return errEncodeNil
	}
	info, err := cachedTypeInfo(rv.Type())
	if err != nil {
		return err
	}
	return info.encoder(w, rv)
}

func decodeValue(s *Stream, val interface{}) error {
	if val == nil {
		return errDecodeIntoNil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Ptr {
		return errNoPointer
	}
	if rv.IsNil() {
		return errDecodeIntoNil
	}
	info, err := cachedTypeInfo(rv.Type().Elem())
	if err != nil {
		return err
	}
	return info.decoder(s, rv.Elem())
}

// Struct field handling.

type field struct {
	index    int
	name     string
	info     *typeinfo
	optional bool
	tail     bool
}

type structFieldError struct {
	typ   reflect.Type
	field string
	err   error
}

func (e structFieldError) Error() string {
	return fmt.Sprintf("%v (struct field %v.%s)", e.err, e.typ, e.field)
}

func (e structFieldError) Unwrap() error { return e.err }

// structFields resolves the encoded fields of a struct type, applying
// the rlp struct tags. It requires the typeCache write lock.
func structFields(typ reflect.Type) ([]field, error) {
	var fields []field
	anyOptional := false
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		var optional, tail bool
		tag := f.Tag.Get("rlp")
		skip := false
		for _, t := range strings.Split(tag, ",") {
			switch t = strings.TrimSpace(t); t {
			case "":
			case "-":
				skip = true
			case "optional":
				optional = true
			case "tail":
				tail = true
			case "nil", "nilString", "nilList":
				// accepted for compatibility, nil pointers already
				// encode as the element's empty value
			default:
				return nil, fmt.Errorf("rlp: unknown struct tag %q on %v.%s", t, typ, f.Name)
			}
		}
		if skip {
			continue
		}
		if anyOptional && !optional && !tail {
			return nil, fmt.Errorf("rlp: struct field %v.%s needs \"optional\" tag", typ, f.Name)
		}
		if optional {
			anyOptional = true
		}
		if tail {
			if i != typ.NumField()-1 {
				return nil, fmt.Errorf("rlp: invalid struct tag \"tail\" on %v.%s (must be on last field)", typ, f.Name)
			}
			if f.Type.Kind() != reflect.Slice {
				return nil, fmt.Errorf("rlp: invalid struct tag \"tail\" on %v.%s (field type is not slice)", typ, f.Name)
			}
			// The tail decodes element-wise, cache the element type.
			info, err := cachedTypeInfoLocked(f.Type.Elem())
			if err != nil {
				return nil, err
			}
			fields = append(fields, field{index: i, name: f.Name, info: info, tail: true})
			continue
		}
		info, err := cachedTypeInfoLocked(f.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{index: i, name: f.Name, info: info, optional: optional})
	}
	return fields, nil
}

// Writers.

func makeWriter(typ reflect.Type) (writer, error) {
	kind := typ.Kind()
	switch {
	case typ == rawValueType:
		return writeRawValue, nil
	case typ == bigIntPtrType:
		return writeBigIntPtr, nil
	case typ == bigIntType:
		return writeBigIntNoPtr, nil
	case typ == u256PtrType:
		return writeU256IntPtr, nil
	case typ == u256Type:
		return writeU256IntNoPtr, nil
	case typ.Implements(encoderInterface):
		return writeEncoder, nil
	case kind == reflect.Ptr:
		return makePtrWriter(typ)
	case isUint(kind):
		return writeUint, nil
	case kind == reflect.Bool:
		return writeBool, nil
	case kind == reflect.String:
		return writeString, nil
	case kind == reflect.Slice && isByte(typ.Elem()):
		return writeBytes, nil
	case kind == reflect.Array && isByte(typ.Elem()):
		return writeByteArray, nil
	case kind == reflect.Slice || kind == reflect.Array:
		return makeSliceWriter(typ)
	case kind == reflect.Struct:
		return makeStructWriter(typ)
	case kind == reflect.Interface:
		return writeInterface, nil
	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-serializable", typ)
	}
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isByte(typ reflect.Type) bool {
	return typ.Kind() == reflect.Uint8 && !typ.Implements(encoderInterface)
}

func writeRawValue(w *EncoderBuffer, rv reflect.Value) error {
	w.WriteRaw(rv.Bytes())
	return nil
}

func writeUint(w *EncoderBuffer, rv reflect.Value) error {
	w.WriteUint64(rv.Uint())
	return nil
}

func writeBool(w *EncoderBuffer, rv reflect.Value) error {
	w.WriteBool(rv.Bool())
	return nil
}

func writeString(w *EncoderBuffer, rv reflect.Value) error {
	w.WriteString(rv.String())
	return nil
}

func writeBytes(w *EncoderBuffer, rv reflect.Value) error {
	w.WriteBytes(rv.Bytes())
	return nil
}

func writeByteArray(w *EncoderBuffer, rv reflect.Value) error {
	if rv.CanAddr() {
		w.WriteBytes(rv.Slice(0, rv.Len()).Bytes())
		return nil
	}
	b := make([]byte, rv.Len())
	reflect.Copy(reflect.ValueOf(b), rv)
	w.WriteBytes(b)
	return nil
}

func writeBigIntPtr(w *EncoderBuffer, rv reflect.Value) error {
	i := rv.Interface().(*big.Int)
	if i == nil {
		w.WriteUint64(0)
		return nil
	}
	if i.Sign() < 0 {
		return errors.New("rlp: cannot encode negative big.Int")
	}
	w.WriteBigInt(i)
	return nil
}

func writeBigIntNoPtr(w *EncoderBuffer, rv reflect.Value) error {
	i := rv.Interface().(big.Int)
	return writeBigIntPtr(w, reflect.ValueOf(&i))
}

func writeU256IntPtr(w *EncoderBuffer, rv reflect.Value) error {
	i := rv.Interface().(*uint256.Int)
	if i == nil {
		w.WriteUint64(0)
		return nil
	}
	w.WriteUint256(i)
	return nil
}

func writeU256IntNoPtr(w *EncoderBuffer, rv reflect.Value) error {
	i := rv.Interface().(uint256.Int)
	w.WriteUint256(&i)
	return nil
}

func writeEncoder(w *EncoderBuffer, rv reflect.Value) error {
	if err := rv.Interface().(Encoder).EncodeRLP(encWriter{w}); err != nil {
		return err
	}
	w.itemDone()
	return nil
}

func writeInterface(w *EncoderBuffer, rv reflect.Value) error {
	if rv.IsNil() {
		// Write empty list. This is consistent with the previous RLP
		// encoder that we had and should therefore avoid any
		// problems.
		w.List(0)
		return nil
	}
	eval := rv.Elem()
	info, err := cachedTypeInfo(eval.Type())
	if err != nil {
		return err
	}
	return info.encoder(w, eval)
}

func makeSliceWriter(typ reflect.Type) (writer, error) {
	etypeinfo, err := cachedTypeInfoLocked(typ.Elem())
	if err != nil {
		return nil, err
	}
	wfn := func(w *EncoderBuffer, rv reflect.Value) error {
		vlen := rv.Len()
		w.List(vlen)
		for i := 0; i < vlen; i++ {
			if err := etypeinfo.encoder(w, rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return wfn, nil
}

func makeStructWriter(typ reflect.Type) (writer, error) {
	fields, err := structFields(typ)
	if err != nil {
		return nil, err
	}
	wfn := func(w *EncoderBuffer, rv reflect.Value) error {
		// Trailing optional fields holding their zero value are
		// omitted from the output.
		last := len(fields) - 1
		for last >= 0 && fields[last].optional && rv.Field(fields[last].index).IsZero() {
			last--
		}
		count := 0
		for i := 0; i <= last; i++ {
			if fields[i].tail {
				count += rv.Field(fields[i].index).Len()
			} else {
				count++
			}
		}
		w.List(count)
		for i := 0; i <= last; i++ {
			f := &fields[i]
			fv := rv.Field(f.index)
			if f.tail {
				for j := 0; j < fv.Len(); j++ {
					if err := f.info.encoder(w, fv.Index(j)); err != nil {
						return structFieldError{typ, f.name, err}
					}
				}
				continue
			}
			if err := f.info.encoder(w, fv); err != nil {
				return structFieldError{typ, f.name, err}
			}
		}
		return nil
	}
	return wfn, nil
}

func makePtrWriter(typ reflect.Type) (writer, error) {
	etypeinfo, err := cachedTypeInfoLocked(typ.Elem())
	if err != nil {
		return nil, err
	}
	nilList := listEncodedKind(typ.Elem())
	wfn := func(w *EncoderBuffer, rv reflect.Value) error {
		if rv.IsNil() {
			if nilList {
				w.List(0)
			} else {
				w.WriteBytes(nil)
			}
			return nil
		}
		return etypeinfo.encoder(w, rv.Elem())
	}
	return wfn, nil
}

// listEncodedKind reports whether values of typ encode as RLP lists,
// which determines the stand-in for a nil pointer to typ.
func listEncodedKind(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Struct:
		return true
	case reflect.Slice, reflect.Array:
		return !isByte(typ.Elem())
	default:
		return false
	}
}

// Decoders.

func makeDecoder(typ reflect.Type) (decoderFn, error) {
	kind := typ.Kind()
	switch {
	case typ == rawValueType:
		return decodeRawValue, nil
	case typ == bigIntPtrType:
		return decodeBigIntPtr, nil
	case typ == bigIntType:
		return decodeBigIntNoPtr, nil
	case typ == u256PtrType:
		return decodeU256Ptr, nil
	case typ == u256Type:
		return decodeU256NoPtr, nil
	case kind == reflect.Ptr:
		return makePtrDecoder(typ)
	case reflect.PtrTo(typ).Implements(decoderInterface):
		return decodeDecoder, nil
	case isUint(kind):
		return makeUintDecoder(typ), nil
	case kind == reflect.Bool:
		return decodeBool, nil
	case kind == reflect.String:
		return decodeString, nil
	case kind == reflect.Slice && isByte(typ.Elem()):
		return decodeByteSlice, nil
	case kind == reflect.Array && isByte(typ.Elem()):
		return decodeByteArray, nil
	case kind == reflect.Slice || kind == reflect.Array:
		return makeListDecoder(typ)
	case kind == reflect.Struct:
		return makeStructDecoder(typ)
	case kind == reflect.Interface:
		return decodeInterface, nil
	default:
		return nil, fmt.Errorf("rlp: type %v is not RLP-serializable", typ)
	}
}

func decodeRawValue(s *Stream, rv reflect.Value) error {
	r, err := s.Raw()
	if err != nil {
		return err
	}
	rv.SetBytes(r)
	return nil
}

func makeUintDecoder(typ reflect.Type) decoderFn {
	bits := typ.Bits()
	return func(s *Stream, rv reflect.Value) error {
		v, err := s.uint(bits)
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	}
}

func decodeBool(s *Stream, rv reflect.Value) error {
	b, err := s.Bool()
	if err != nil {
		return err
	}
	rv.SetBool(b)
	return nil
}

func decodeString(s *Stream, rv reflect.Value) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	rv.SetString(string(b))
	return nil
}

func decodeByteSlice(s *Stream, rv reflect.Value) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	rv.SetBytes(b)
	return nil
}

func decodeByteArray(s *Stream, rv reflect.Value) error {
	slice := rv.Slice(0, rv.Len()).Bytes()
	return s.ReadBytes(slice)
}

func decodeBigIntPtr(s *Stream, rv reflect.Value) error {
	i := rv.Interface().(*big.Int)
	if i == nil {
		i = new(big.Int)
		rv.Set(reflect.ValueOf(i))
	}
	return s.ReadBigInt(i)
}

func decodeBigIntNoPtr(s *Stream, rv reflect.Value) error {
	return s.ReadBigInt(rv.Addr().Interface().(*big.Int))
}

func decodeU256Ptr(s *Stream, rv reflect.Value) error {
	i := rv.Interface().(*uint256.Int)
	if i == nil {
		i = new(uint256.Int)
		rv.Set(reflect.ValueOf(i))
	}
	return s.ReadUint256(i)
}

func decodeU256NoPtr(s *Stream, rv reflect.Value) error {
	return s.ReadUint256(rv.Addr().Interface().(*uint256.Int))
}

func decodeDecoder(s *Stream, rv reflect.Value) error {
	return rv.Addr().Interface().(Decoder).DecodeRLP(s)
}

func decodeInterface(s *Stream, rv reflect.Value) error {
	if rv.Type().NumMethod() != 0 {
		return fmt.Errorf("rlp: type %v is not RLP-serializable", rv.Type())
	}
	kind, _, err := s.Kind()
	if err != nil {
		return err
	}
	if kind == List {
		slice := reflect.New(reflect.TypeOf([]interface{}{})).Elem()
		if err := decodeListSlice(s, slice, decodeInterface); err != nil {
			return err
		}
		rv.Set(slice)
		return nil
	}
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	rv.Set(reflect.ValueOf(b))
	return nil
}

func makeListDecoder(typ reflect.Type) (decoderFn, error) {
	etypeinfo, err := cachedTypeInfoLocked(typ.Elem())
	if err != nil {
		return nil, err
	}
	if typ.Kind() == reflect.Array {
		return func(s *Stream, rv reflect.Value) error {
			return decodeListArray(s, rv, etypeinfo.decoder)
		}, nil
	}
	return func(s *Stream, rv reflect.Value) error {
		return decodeListSlice(s, rv, etypeinfo.decoder)
	}, nil
}

func decodeListSlice(s *Stream, rv reflect.Value, elemdec decoderFn) error {
	if _, err := s.List(); err != nil {
		return err
	}
	rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
	for i := 0; s.MoreDataInList(); i++ {
		rv.Set(reflect.Append(rv, reflect.Zero(rv.Type().Elem())))
		if err := elemdec(s, rv.Index(i)); err != nil {
			return fmt.Errorf("%w (list element %d)", err, i)
		}
	}
	return s.ListEnd()
}

func decodeListArray(s *Stream, rv reflect.Value, elemdec decoderFn) error {
	if _, err := s.List(); err != nil {
		return err
	}
	vlen := rv.Len()
	i := 0
	for ; i < vlen && s.MoreDataInList(); i++ {
		if err := elemdec(s, rv.Index(i)); err != nil {
			return fmt.Errorf("%w (array element %d)", err, i)
		}
	}
	if i < vlen {
		return errStringShort
	}
	if s.MoreDataInList() {
		return errStringTooLong
	}
	return s.ListEnd()
}

func makeStructDecoder(typ reflect.Type) (decoderFn, error) {
	fields, err := structFields(typ)
	if err != nil {
		return nil, err
	}
	dfn := func(s *Stream, rv reflect.Value) error {
		if _, err := s.List(); err != nil {
			return err
		}
		for i := range fields {
			f := &fields[i]
			fv := rv.Field(f.index)
			if f.tail {
				// Flatten the remaining elements into the tail slice.
				fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
				for j := 0; s.MoreDataInList(); j++ {
					fv.Set(reflect.Append(fv, reflect.Zero(fv.Type().Elem())))
					if err := f.info.decoder(s, fv.Index(j)); err != nil {
						return structFieldError{typ, f.name, err}
					}
				}
				continue
			}
			if !s.MoreDataInList() {
				if !f.optional {
					return fmt.Errorf("rlp: too few elements for %v", typ)
				}
				// Zero this and all remaining optional fields.
				for j := i; j < len(fields); j++ {
					rv.Field(fields[j].index).Set(reflect.Zero(rv.Field(fields[j].index).Type()))
				}
				break
			}
			if err := f.info.decoder(s, fv); err != nil {
				return structFieldError{typ, f.name, err}
			}
		}
		if s.MoreDataInList() {
			return fmt.Errorf("rlp: input list has too many elements for %v", typ)
		}
		return s.ListEnd()
	}
	return dfn, nil
}

// makePtrDecoder creates a decoder that decodes into the pointer's
// element type, allocating as needed.
func makePtrDecoder(typ reflect.Type) (decoderFn, error) {
	etypeinfo, err := cachedTypeInfoLocked(typ.Elem())
	if err != nil {
		return nil, err
	}
	etype := typ.Elem()
	dfn := func(s *Stream, rv reflect.Value) error {
		newval := rv
		if rv.IsNil() {
			newval = reflect.New(etype)
		}
		if err := etypeinfo.decoder(s, newval.Elem()); err != nil {
			return err
		}
		rv.Set(newval)
		return nil
	}
	return dfn, nil
}
