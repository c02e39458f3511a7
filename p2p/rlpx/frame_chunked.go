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

//go:build rlpx_chunked

package rlpx

import (
	"errors"
	"io"

	"github.com/ethereum/devp2p/rlp"
)

// Support for the obsolete chunked frame variant. A multi-frame message starts
// with a frame whose header-data carries a total-packet-size; continuation
// frames with the same context id follow until that many bytes have arrived.
// Writing still uses single frames only.

var errBadChunkHeader = errors.New("malformed chunked frame header")

// headerData is the RLP list embedded in the frame header. The total packet
// size is present only in the initial frame of a chunked message.
type headerData struct {
	CapabilityID uint
	ContextID    uint
	TotalSize    *uint32 `rlp:"optional"`
}

// readFrame reads a message, reassembling chunked frames if necessary.
func (h *sessionState) readFrame(conn io.Reader) ([]byte, error) {
	h.rbuf.reset()

	header, frame, err := h.readSingleFrame(conn)
	if err != nil {
		return nil, err
	}
	var hd headerData
	if err := rlp.NewStream(header[3:]).Decode(&hd); err != nil {
		return nil, errBadChunkHeader
	}
	if hd.TotalSize == nil {
		if hd.ContextID != 0 {
			// A continuation frame is only valid after an initial chunked frame.
			return nil, errBadChunkHeader
		}
		return frame, nil
	}

	// Initial frame of a chunked message.
	total := int(*hd.TotalSize)
	if total > maxMessageSize {
		return nil, errPlainMessageTooLarge
	}
	msg := make([]byte, 0, total)
	msg = append(msg, frame...)
	for len(msg) < total {
		header, frame, err := h.readSingleFrame(conn)
		if err != nil {
			return nil, err
		}
		var chd headerData
		if err := rlp.NewStream(header[3:]).Decode(&chd); err != nil {
			return nil, errBadChunkHeader
		}
		if chd.ContextID != hd.ContextID || chd.TotalSize != nil {
			return nil, errBadChunkHeader
		}
		msg = append(msg, frame...)
	}
	if len(msg) != total {
		return nil, errBadChunkHeader
	}
	return msg, nil
}
