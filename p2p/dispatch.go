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

// maxMsgCode is the largest message id accepted from the wire. Ids are
// encoded as RLP integers but must fit a non-negative int32.
const maxMsgCode = 1<<31 - 1

// protoEntry is the per-peer state of one registered subprotocol.
type protoEntry struct {
	Protocol

	// offset is the first peer-local message id assigned to the protocol,
	// or -1 when the remote did not announce the matching capability.
	offset int64

	// state holds the object created by the protocol's PeerStateInitializer.
	state interface{}
}

func (e *protoEntry) accepted() bool { return e.offset >= 0 }

// matchProtocols assigns a message id range to every registered protocol the
// remote peer also supports. Ranges are handed out in protocol declaration
// order, starting right after the base protocol ids. Protocols the remote did
// not announce keep offset -1.
func matchProtocols(protocols []Protocol, remoteCaps []Cap) []*protoEntry {
	entries := make([]*protoEntry, len(protocols))
	offset := int64(baseProtocolLength)
	for i, proto := range protocols {
		e := &protoEntry{Protocol: proto, offset: -1}
		if containsCap(remoteCaps, proto.cap()) {
			e.offset = offset
			offset += int64(proto.Length())
		}
		entries[i] = e
	}
	return entries
}

func containsCap(caps []Cap, c Cap) bool {
	for _, cap := range caps {
		if cap == c {
			return true
		}
	}
	return false
}

func countMatchingProtocols(protocols []Protocol, caps []Cap) int {
	n := 0
	for _, proto := range protocols {
		if containsCap(caps, proto.cap()) {
			n++
		}
	}
	return n
}

// msgTableEntry maps a peer-local message id back to its protocol and spec.
type msgTableEntry struct {
	proto   *protoEntry
	spec    *MsgSpec
	localID uint64
}

// buildMsgTable creates the flat dispatch table indexed by peer-local message
// id. Ids of the base protocol and of unaccepted ranges stay nil.
func buildMsgTable(entries []*protoEntry) []*msgTableEntry {
	size := baseProtocolLength
	for _, e := range entries {
		if e.accepted() {
			if end := uint64(e.offset) + e.Length(); end > size {
				size = end
			}
		}
	}
	table := make([]*msgTableEntry, size)
	for _, e := range entries {
		if !e.accepted() {
			continue
		}
		for i := range e.Messages {
			table[int(e.offset)+i] = &msgTableEntry{proto: e, spec: &e.Messages[i], localID: uint64(i)}
		}
	}
	return table
}
