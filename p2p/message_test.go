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

package p2p

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/devp2p/rlp"
)

func ExampleMsgPipe() {
	rw1, rw2 := MsgPipe()
	go func() {
		Send(rw1, 8, [][]byte{{0, 0}})
		Send(rw1, 5, [][]byte{{1, 1}})
		rw1.Close()
	}()

	for {
		msg, err := rw2.ReadMsg()
		if err != nil {
			break
		}
		var data [][]byte
		msg.Decode(&data)
		fmt.Printf("msg: %d, %x\n", msg.Code, data[0])
	}
	// Output:
	// msg: 8, 0000
	// msg: 5, 0101
}

func TestMsgPipeUnblockWrite(t *testing.T) {
loop:
	for i := 0; i < 100; i++ {
		rw1, rw2 := MsgPipe()
		done := make(chan struct{})
		go func() {
			if err := SendItems(rw1, 1); err == nil {
				t.Error("EncodeMsg returned nil error")
			} else if err != ErrPipeClosed {
				t.Errorf("EncodeMsg returned wrong error: got %v, want %v", err, ErrPipeClosed)
			}
			close(done)
		}()

		// this call should ensure that EncodeMsg is waiting to
		// deliver sometimes. if this isn't done, Close is likely to
		// be executed before EncodeMsg starts and then we won't test
		// all the cases.
		time.Sleep(50 * time.Microsecond)
		rw2.Close()

		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
			t.Errorf("write didn't unblock")
			break loop
		}
	}
}

// This test should panic if concurrent close isn't implemented correctly.
func TestMsgPipeConcurrentClose(t *testing.T) {
	rw1, _ := MsgPipe()
	for i := 0; i < 10; i++ {
		go rw1.Close()
	}
}

func TestMsgDecodeTolerantOfTrailingData(t *testing.T) {
	payload, _ := rlp.EncodeToBytes([]uint{1, 2})
	payload = append(payload, 0x01) // trailing junk after the value

	msg := Msg{Code: 3, Size: uint32(len(payload)), Payload: bytes.NewReader(payload)}
	var data []uint
	if err := msg.Decode(&data); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(data) != 2 || data[0] != 1 || data[1] != 2 {
		t.Errorf("decoded %v, want [1 2]", data)
	}
}

func TestMsgDecodeError(t *testing.T) {
	payload, _ := rlp.EncodeToBytes("not a list")
	msg := Msg{Code: 3, Size: uint32(len(payload)), Payload: bytes.NewReader(payload)}
	var data []uint
	err := msg.Decode(&data)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if _, ok := err.(*peerError); !ok {
		t.Errorf("decode error has type %T, want *peerError", err)
	}
}

func TestExpectMsg(t *testing.T) {
	rw1, rw2 := MsgPipe()

	go func() {
		Send(rw1, 5, []uint{})
		Send(rw1, 2, []uint{2})
		Send(rw1, 3, []uint{4, 5})
	}()

	if err := ExpectMsg(rw2, 1, nil); err == nil {
		t.Error("expected mismatch error for wrong code")
	}
	if err := ExpectMsg(rw2, 2, []uint{3}); err == nil {
		t.Error("expected mismatch error for wrong content")
	}
	if err := ExpectMsg(rw2, 3, []uint{4, 5}); err != nil {
		t.Errorf("expected no error for matching message, got %v", err)
	}
}
