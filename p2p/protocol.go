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
	"cmp"
	"fmt"
	"strings"
)

// MsgHandler is invoked by the dispatch loop for an incoming message. The
// message code has already been translated to the protocol-local id and the
// Payload must be fully consumed before returning.
type MsgHandler func(peer *Peer, msg Msg) error

// MsgSpec describes one message type of a subprotocol. Message specs are
// indexed by their position in Protocol.Messages, which is the protocol-local
// message id.
type MsgSpec struct {
	// Name is used in logs and error messages.
	Name string

	// Handler is invoked for incoming messages of this type. A nil handler
	// discards the message payload.
	Handler MsgHandler

	// ResolvesRequest marks this message as the response half of a
	// request/response pair. Incoming messages of this type resolve an
	// outstanding request future before the handler runs.
	ResolvesRequest bool

	// HasRequestID indicates that the first element of the message body is an
	// explicit request id used for correlation. When false, responses resolve
	// outstanding requests in FIFO order.
	HasRequestID bool
}

// Protocol represents a P2P subprotocol implementation.
//
// The descriptor is immutable once a peer connection has been set up with it:
// the dispatch tables built from Messages are shared between peers.
type Protocol struct {
	// Name should contain the official protocol name,
	// often a three-letter word.
	Name string

	// Version should contain the version number of the protocol.
	Version uint

	// Messages holds the message table of the protocol. The message id space
	// assigned to the protocol during capability negotiation covers exactly
	// len(Messages) codes.
	Messages []MsgSpec

	// HandshakeHandler, if non-nil, runs the protocol's own handshake right
	// after capability negotiation, concurrently with the handlers of the
	// other active protocols. The dispatch loop is live at this point, so the
	// handler can exchange messages through Send, AwaitMsg and TrackRequest.
	// An error disconnects the peer with DiscSubprotocolError.
	HandshakeHandler func(peer *Peer) error

	// DisconnectHandler, if non-nil, is invoked when the peer connection is
	// torn down. Handlers of all active protocols run concurrently; errors
	// are logged but do not affect the teardown.
	DisconnectHandler func(peer *Peer, reason DiscReason) error

	// PeerStateInitializer, if non-nil, creates the protocol's per-peer state
	// before any message is dispatched. The state is available through
	// Peer.ProtocolState.
	PeerStateInitializer func(peer *Peer) interface{}

	// NetworkStateInitializer, if non-nil, creates the protocol's shared
	// state when the server starts. The state is available through
	// Server.ProtocolState.
	NetworkStateInitializer func() interface{}
}

// Length returns the number of message codes used by the protocol.
func (p Protocol) Length() uint64 {
	return uint64(len(p.Messages))
}

func (p Protocol) cap() Cap {
	return Cap{p.Name, p.Version}
}

// Cap is the structure of a peer capability.
type Cap struct {
	Name    string
	Version uint
}

func (cap Cap) String() string {
	return fmt.Sprintf("%s/%d", cap.Name, cap.Version)
}

// Cmp defines the canonical sorting order of capabilities.
func (cap Cap) Cmp(other Cap) int {
	if cap.Name == other.Name {
		return cmp.Compare(cap.Version, other.Version)
	}
	return strings.Compare(cap.Name, other.Name)
}
