// Copyright 2021 The go-ethereum Authors
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
	"io"
	"testing"

	"github.com/ethereum/devp2p/rlp"
)

// Frames with non-zero header-data options are rejected when chunked frame
// support is not compiled in.
func TestNonZeroHeaderData(t *testing.T) {
	peer1, peer2 := createFramePeers()
	defer peer1.Close()
	defer peer2.Close()

	ch := make(chan message, 1)
	go func() {
		code, data, _, err := peer2.Read()
		ch <- message{code, data, err}
	}()
	// Send a frame with context id 1 in the header data.
	err := writeFrameWithHeaderData(peer1.session, peer1.conn, 5, []byte("chunked"), []byte{0xC2, 0x01, 0x80})
	if err != nil {
		t.Fatal(err)
	}
	if msg := <-ch; msg.err != errNonZeroHeaderData {
		t.Errorf("got error %q, want %q", msg.err, errNonZeroHeaderData)
	}
}

// writeFrameWithHeaderData is like writeFrame, but allows overriding the
// header-data options of the frame header.
func writeFrameWithHeaderData(h *sessionState, conn io.Writer, code uint64, data, headerData []byte) error {
	h.wbuf.reset()

	fsize := rlp.IntSize(code) + len(data)
	header := h.wbuf.appendZero(16)
	putUint24(uint32(fsize), header)
	copy(header[3:], headerData)
	h.enc.XORKeyStream(header, header)
	h.wbuf.Write(h.egressMAC.computeHeader(header))

	offset := len(h.wbuf.data)
	h.wbuf.data = rlp.AppendUint64(h.wbuf.data, code)
	h.wbuf.Write(data)
	if padding := fsize % 16; padding > 0 {
		h.wbuf.appendZero(16 - padding)
	}
	framedata := h.wbuf.data[offset:]
	h.enc.XORKeyStream(framedata, framedata)
	h.wbuf.Write(h.egressMAC.computeFrame(framedata))

	_, err := conn.Write(h.wbuf.data)
	return err
}
