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
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/devp2p/common/mclock"
	"github.com/ethereum/devp2p/log"
	"github.com/ethereum/devp2p/p2p/enode"
	"github.com/ethereum/devp2p/p2p/enr"
	"github.com/ethereum/devp2p/rlp"
	"golang.org/x/sync/errgroup"
)

var ErrShuttingDown = errors.New("shutting down")

const (
	baseProtocolVersion    = 5
	baseProtocolLength     = uint64(16)
	baseProtocolMaxMsgSize = 2 * 1024

	snappyProtocolVersion = 5

	pingInterval = 15 * time.Second

	// disconnectNotifyTimeout bounds the wait for the read loop to observe
	// connection teardown after the disconnect reason has been sent.
	disconnectNotifyTimeout = 2 * time.Second
)

const (
	// devp2p message codes
	handshakeMsg = 0x00
	discMsg      = 0x01
	pingMsg      = 0x02
	pongMsg      = 0x03
)

// protoHandshake is the RLP structure of the protocol handshake.
type protoHandshake struct {
	Version    uint64
	Name       string
	Caps       []Cap
	ListenPort uint64
	ID         []byte // secp256k1 public key

	// Ignore additional fields (for forward compatibility).
	Rest []rlp.RawValue `rlp:"tail"`
}

// PeerState is the lifecycle state of a peer connection.
type PeerState int32

const (
	PeerConnecting PeerState = iota
	PeerConnected
	PeerDisconnecting
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnecting:
		return "disconnecting"
	case PeerDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown peer state %d", int32(s))
	}
}

// Peer represents a connected remote node.
type Peer struct {
	rw       *conn
	entries  []*protoEntry
	msgTable []*msgTableEntry
	reqs     *requestTracker
	log      log.Logger
	created  mclock.AbsTime

	awaitedMu sync.Mutex
	awaited   []*ResponseFuture // indexed by peer-local message id
	awaitDone bool

	state           atomic.Int32
	wg              sync.WaitGroup
	closed          chan struct{} // closed when teardown starts
	readDone        chan struct{} // closed when the read loop exits
	disconnected    chan struct{} // closed when teardown has finished
	pingRecv        chan struct{}
	discReason      DiscReason
	remoteRequested bool

	testPipe *MsgPipeRW // for testing
}

// NewPeer returns a peer for testing purposes.
func NewPeer(id enode.ID, name string, caps []Cap) *Peer {
	// Generate a fake set of local protocols to match as running caps. Almost
	// no fields needs to be meaningful here as we're only using it to cross-
	// check with the "remote" caps array.
	protos := make([]Protocol, len(caps))
	for i, cap := range caps {
		protos[i].Name = cap.Name
		protos[i].Version = cap.Version
	}
	pipe, _ := net.Pipe()
	node := enode.SignNull(new(enr.Record), id)
	conn := &conn{fd: pipe, transport: nil, node: node, caps: caps, name: name}
	peer := newPeer(log.Root(), conn, protos)
	peer.state.Store(int32(PeerConnected))
	return peer
}

// NewPeerPipe creates a peer for testing purposes.
// The message pipe given as the last parameter is closed when
// Disconnect is called on the peer.
func NewPeerPipe(id enode.ID, name string, caps []Cap, pipe *MsgPipeRW) *Peer {
	p := NewPeer(id, name, caps)
	p.testPipe = pipe
	return p
}

func newPeer(logger log.Logger, conn *conn, protocols []Protocol) *Peer {
	entries := matchProtocols(protocols, conn.caps)
	table := buildMsgTable(entries)
	p := &Peer{
		rw:           conn,
		entries:      entries,
		msgTable:     table,
		awaited:      make([]*ResponseFuture, len(table)),
		created:      mclock.Now(),
		closed:       make(chan struct{}),
		readDone:     make(chan struct{}),
		disconnected: make(chan struct{}),
		pingRecv:     make(chan struct{}, 16),
		log:          logger.New("id", conn.node.ID(), "conn", conn.flags),
	}
	p.reqs = newRequestTracker(mclock.System{}, p.log)
	for _, e := range p.entries {
		if e.accepted() && e.PeerStateInitializer != nil {
			e.state = e.PeerStateInitializer(p)
		}
	}
	return p
}

// ID returns the node's public key.
func (p *Peer) ID() enode.ID {
	return p.rw.node.ID()
}

// Node returns the peer's node descriptor.
func (p *Peer) Node() *enode.Node {
	return p.rw.node
}

// Name returns an abbreviated form of the name.
func (p *Peer) Name() string {
	s := p.rw.name
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}

// Fullname returns the node name that the remote node advertised.
func (p *Peer) Fullname() string {
	return p.rw.name
}

// Caps returns the capabilities (supported subprotocols) of the remote peer.
func (p *Peer) Caps() []Cap {
	return p.rw.caps
}

// State returns the lifecycle state of the connection.
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

// RunningCap returns true if the peer is actively connected using any of the
// enumerated versions of a specific protocol, meaning that at least one of the
// versions is supported by both this node and the peer p.
func (p *Peer) RunningCap(protocol string, versions []uint) bool {
	for _, e := range p.entries {
		if e.accepted() && e.Name == protocol {
			for _, ver := range versions {
				if e.Version == ver {
					return true
				}
			}
		}
	}
	return false
}

// RemoteAddr returns the remote address of the network connection.
func (p *Peer) RemoteAddr() net.Addr {
	return p.rw.fd.RemoteAddr()
}

// LocalAddr returns the local address of the network connection.
func (p *Peer) LocalAddr() net.Addr {
	return p.rw.fd.LocalAddr()
}

// String implements fmt.Stringer.
func (p *Peer) String() string {
	id := p.ID()
	return fmt.Sprintf("Peer %x %v", id[:8], p.RemoteAddr())
}

// Inbound returns true if the peer is an inbound connection.
func (p *Peer) Inbound() bool {
	return p.rw.is(inboundConn)
}

func (p *Peer) Log() log.Logger {
	return p.log
}

// protoEntry returns the per-peer state of the named protocol.
func (p *Peer) protoEntry(name string) *protoEntry {
	for _, e := range p.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Send writes a message of the named protocol, identified by its
// protocol-local message id. data should encode as an RLP list.
func (p *Peer) Send(proto string, localCode uint64, data interface{}) error {
	if p.State() >= PeerDisconnecting {
		return ErrShuttingDown
	}
	e := p.protoEntry(proto)
	if e == nil || !e.accepted() {
		return fmt.Errorf("protocol %s not negotiated with peer", proto)
	}
	if localCode >= e.Length() {
		return newPeerError(errInvalidMsgCode, "%d not handled by %s", localCode, proto)
	}
	return Send(p.rw, uint64(e.offset)+localCode, data)
}

// TrackRequest registers an outgoing request of the named protocol. The
// response is expected as the message with the given protocol-local id. It
// returns the allocated request id and a future that resolves with the
// response, with ErrRequestTimeout, or with *PeerDisconnectedError on
// teardown. Protocols carrying explicit request ids must place the returned
// id as the first element of the request body.
func (p *Peer) TrackRequest(proto string, respLocalCode uint64, timeout time.Duration) (uint64, *ResponseFuture, error) {
	if p.State() >= PeerDisconnecting {
		return 0, nil, ErrShuttingDown
	}
	e := p.protoEntry(proto)
	if e == nil || !e.accepted() {
		return 0, nil, fmt.Errorf("protocol %s not negotiated with peer", proto)
	}
	if respLocalCode >= e.Length() {
		return 0, nil, newPeerError(errInvalidMsgCode, "%d not handled by %s", respLocalCode, proto)
	}
	id, fut := p.reqs.track(uint64(e.offset)+respLocalCode, timeout)
	return id, fut, nil
}

// ProtocolState returns the per-peer state object of the named protocol, as
// created by its PeerStateInitializer. It is nil for protocols without an
// initializer or not negotiated with the peer.
func (p *Peer) ProtocolState(proto string) interface{} {
	if e := p.protoEntry(proto); e != nil {
		return e.state
	}
	return nil
}

// AwaitMsg returns a future that resolves with the next incoming message of
// the named protocol with the given protocol-local id. At most one future is
// pending per message id: concurrent callers share it. The future fails with
// *PeerDisconnectedError when the connection goes down first.
func (p *Peer) AwaitMsg(proto string, localCode uint64) (*ResponseFuture, error) {
	e := p.protoEntry(proto)
	if e == nil || !e.accepted() {
		return nil, fmt.Errorf("protocol %s not negotiated with peer", proto)
	}
	if localCode >= e.Length() {
		return nil, newPeerError(errInvalidMsgCode, "%d not handled by %s", localCode, proto)
	}
	wireCode := uint64(e.offset) + localCode

	p.awaitedMu.Lock()
	defer p.awaitedMu.Unlock()
	if p.awaitDone {
		return nil, ErrShuttingDown
	}
	if f := p.awaited[wireCode]; f != nil {
		return f, nil
	}
	f := newResponseFuture()
	p.awaited[wireCode] = f
	return f, nil
}

// takeAwaited removes and returns the pending next-message future of a
// peer-local message id, if any.
func (p *Peer) takeAwaited(wireCode uint64) *ResponseFuture {
	p.awaitedMu.Lock()
	defer p.awaitedMu.Unlock()
	f := p.awaited[wireCode]
	p.awaited[wireCode] = nil
	return f
}

// drainAwaited fails all pending next-message futures and rejects new ones.
func (p *Peer) drainAwaited(reason DiscReason) {
	p.awaitedMu.Lock()
	defer p.awaitedMu.Unlock()
	p.awaitDone = true
	err := &PeerDisconnectedError{Reason: reason}
	for i, f := range p.awaited {
		if f != nil {
			p.awaited[i] = nil
			f.resolve(Msg{}, err, false)
		}
	}
}

// Disconnect terminates the peer connection with the given reason. It runs
// the full teardown sequence and blocks until it has finished. Calling
// Disconnect on a peer that is already going down is a no-op.
func (p *Peer) Disconnect(reason DiscReason) {
	if p.testPipe != nil {
		p.testPipe.Close()
	}
	p.teardown(reason, false)
}

// teardown runs the disconnect sequence. remoteRequested marks teardowns
// triggered by a disconnect message from the remote end.
func (p *Peer) teardown(reason DiscReason, remoteRequested bool) {
	if !p.state.CompareAndSwap(int32(PeerConnected), int32(PeerDisconnecting)) &&
		!p.state.CompareAndSwap(int32(PeerConnecting), int32(PeerDisconnecting)) {
		return
	}
	p.discReason, p.remoteRequested = reason, remoteRequested
	close(p.closed)

	// Let the active protocols clean up. Handlers run concurrently; their
	// errors are logged but do not affect the teardown.
	var g errgroup.Group
	for _, e := range p.entries {
		if e.accepted() && e.DisconnectHandler != nil {
			e := e
			g.Go(func() error {
				if err := e.DisconnectHandler(p, reason); err != nil {
					return fmt.Errorf("%s/%d: %w", e.Name, e.Version, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		p.log.Debug("Protocol disconnect handler failed", "err", err)
	}

	// Notify the remote end and close the connection, then give the read
	// loop a bounded window to observe the teardown.
	if p.rw.transport != nil {
		p.rw.close(reason)
		select {
		case <-p.readDone:
		case <-time.After(disconnectNotifyTimeout):
		}
	} else {
		p.rw.fd.Close()
	}

	p.state.Store(int32(PeerDisconnected))
	p.reqs.drain(reason)
	p.drainAwaited(reason)
	close(p.disconnected)
}

// run services the connection until it is torn down. It reports whether the
// remote end requested the disconnect, and the error that caused it.
func (p *Peer) run() (remoteRequested bool, err error) {
	p.state.CompareAndSwap(int32(PeerConnecting), int32(PeerConnected))
	p.wg.Add(2)
	go p.readLoop()
	go p.pingLoop()

	if err := p.runProtoHandshakes(); err != nil {
		p.log.Debug("Protocol handshake failed", "err", err)
		p.teardown(DiscSubprotocolError, false)
	}

	<-p.disconnected
	p.wg.Wait()
	return p.remoteRequested, p.discReason
}

// runProtoHandshakes runs the handshake phase of every active protocol. The
// handlers run concurrently, with the dispatch loop already live.
func (p *Peer) runProtoHandshakes() error {
	var g errgroup.Group
	for _, e := range p.entries {
		if e.accepted() && e.HandshakeHandler != nil {
			e := e
			g.Go(func() error {
				if err := e.HandshakeHandler(p); err != nil {
					return fmt.Errorf("%s/%d: %w", e.Name, e.Version, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

func (p *Peer) pingLoop() {
	defer p.wg.Done()

	ping := time.NewTimer(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ping.C:
			if err := SendItems(p.rw, pingMsg); err != nil {
				return
			}
			ping.Reset(pingInterval)
		case <-p.pingRecv:
			SendItems(p.rw, pongMsg)
		case <-p.closed:
			return
		}
	}
}

// readLoop reads and dispatches messages one at a time. A message handler
// must return before the next message is read, so handlers observe messages
// in wire order.
func (p *Peer) readLoop() {
	defer p.wg.Done()

	var (
		reason = DiscNetworkError
		remote = false
	)
	for {
		msg, err := p.rw.ReadMsg()
		if err != nil {
			if r, ok := err.(DiscReason); ok {
				reason, remote = r, true
			}
			break
		}
		msg.ReceivedAt = time.Now()
		if err := p.handle(msg); err != nil {
			if r, ok := err.(DiscReason); ok {
				reason, remote = r, true
			} else {
				reason, remote = discReasonForError(err), false
			}
			break
		}
	}
	close(p.readDone)
	go p.teardown(reason, remote)
}

func (p *Peer) handle(msg Msg) error {
	switch {
	case msg.Code == pingMsg:
		msg.Discard()
		select {
		case p.pingRecv <- struct{}{}:
		case <-p.closed:
		}
	case msg.Code == discMsg:
		// This is the last message. We don't need to discard or check errors
		// because the connection will be closed after it.
		body, err := io.ReadAll(msg.Payload)
		if err != nil {
			return DiscNetworkError
		}
		return decodeDisconnectMessage(body)
	case msg.Code < baseProtocolLength:
		// ignore other base protocol messages
		return msg.Discard()
	case msg.Code > maxMsgCode:
		return newPeerError(errInvalidMsgCode, "%d", msg.Code)
	default:
		return p.dispatch(msg)
	}
	return nil
}

// dispatch routes a subprotocol message through the dispatch table: the
// response correlator and any next-message future first, then the registered
// handler.
func (p *Peer) dispatch(msg Msg) error {
	wireCode := msg.Code
	if wireCode >= uint64(len(p.msgTable)) || p.msgTable[wireCode] == nil {
		return newPeerError(errInvalidMsgCode, "%d", wireCode)
	}
	entry := p.msgTable[wireCode]
	msg.Code = entry.localID

	awaited := p.takeAwaited(wireCode)
	if entry.spec.ResolvesRequest || awaited != nil {
		// The futures and the handler all need the body, so it is read out
		// once and each consumer gets its own reader.
		body, err := io.ReadAll(msg.Payload)
		if err != nil {
			return newPeerError(errInvalidMsg, "(code %x) %v", wireCode, err)
		}
		if entry.spec.ResolvesRequest {
			var reqID uint64
			if entry.spec.HasRequestID {
				if reqID, err = requestIDFromBody(body); err != nil {
					return newPeerError(errInvalidMsg, "(code %x) bad request id: %v", wireCode, err)
				}
			}
			fmsg := msg
			fmsg.Payload = bytes.NewReader(body)
			p.reqs.dispatchResponse(wireCode, reqID, entry.spec.HasRequestID, fmsg)
		}
		if awaited != nil {
			amsg := msg
			amsg.Payload = bytes.NewReader(body)
			awaited.resolve(amsg, nil, false)
		}
		msg.Payload = bytes.NewReader(body)
	}
	if entry.spec.Handler == nil {
		return msg.Discard()
	}
	return entry.spec.Handler(p, msg)
}
