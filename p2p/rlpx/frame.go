// Copyright 2020 The go-ethereum Authors
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

//go:build !rlpx_chunked

package rlpx

import (
	"bytes"
	"errors"
	"io"
)

// errNonZeroHeaderData is returned when the capability id, context id or
// total-packet-size in a frame header is non-zero. Chunked frames are obsolete
// and not compiled in by default, so any use of the header-data options is a
// protocol breach.
var errNonZeroHeaderData = errors.New("non-zero frame header data")

// readFrame reads a single message frame. The header-data options must be
// all-zero because chunked frames are not compiled in.
func (h *sessionState) readFrame(conn io.Reader) ([]byte, error) {
	h.rbuf.reset()

	header, frame, err := h.readSingleFrame(conn)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(header[3:6], zeroHeader) {
		return nil, errNonZeroHeaderData
	}
	return frame, nil
}
