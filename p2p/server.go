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

// Package p2p implements the Ethereum p2p network protocols.
package p2p

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/devp2p/common/mclock"
	"github.com/ethereum/devp2p/crypto"
	"github.com/ethereum/devp2p/log"
	"github.com/ethereum/devp2p/p2p/enode"
	"github.com/ethereum/devp2p/p2p/enr"
)

const (
	defaultMaxPeers    = 50
	defaultDialTimeout = 15 * time.Second

	// Maximum time allowed for reading a complete message.
	// This is effectively the amount of time a connection can be idle.
	frameReadTimeout = 30 * time.Second

	// Maximum amount of time allowed for writing a complete message.
	frameWriteTimeout = 20 * time.Second
)

var errServerStopped = errors.New("server stopped")

// Config holds Server options.
type Config struct {
	// This field must be set to a valid secp256k1 private key.
	PrivateKey *ecdsa.PrivateKey

	// MaxPeers is the maximum number of peers that can be
	// connected. It must be greater than zero.
	MaxPeers int

	// Name sets the node name of this server.
	Name string

	// Protocols should contain the protocols supported
	// by the server.
	Protocols []Protocol

	// If ListenAddr is set to a non-nil address, the server
	// will listen for incoming connections.
	ListenAddr string

	// Logger is a custom logger to use with the p2p.Server.
	Logger log.Logger
}

// Server manages all peer connections.
type Server struct {
	// Config fields may not be modified while the server is running.
	Config

	lock     sync.Mutex // protects running
	running  bool
	listener net.Listener

	ourHandshake *protoHandshake
	localnode    *enode.LocalNode

	quit   chan struct{}
	loopWG sync.WaitGroup
	log    log.Logger

	peersMu sync.Mutex
	peers   map[enode.ID]*Peer

	protoStates map[string]interface{} // created by NetworkStateInitializers at startup
}

type connFlag int32

const (
	dynDialedConn connFlag = 1 << iota
	staticDialedConn
	inboundConn
	trustedConn
)

// conn wraps a network connection with information gathered
// during the two handshakes.
type conn struct {
	fd net.Conn
	transport
	node  *enode.Node
	flags connFlag
	caps  []Cap // valid after the protocol handshake
	name  string
}

type transport interface {
	// The two handshakes.
	doEncHandshake(prv *ecdsa.PrivateKey) (*ecdsa.PublicKey, error)
	doProtoHandshake(our *protoHandshake) (*protoHandshake, error)
	// The MsgReadWriter can only be used after the encryption
	// handshake has completed. The code uses conn.id to track this
	// by setting it to a non-nil value after the encryption handshake.
	MsgReadWriter
	// transports must provide Close because we use MsgPipe in some of
	// the tests. Closing the actual network connection doesn't do
	// anything in those tests because MsgPipe doesn't use it.
	close(err error)
}

func (c *conn) String() string {
	s := c.flags.String()
	if (c.node != nil) && c.node.ID() != (enode.ID{}) {
		s += " " + c.node.ID().String()
	}
	s += " " + c.fd.RemoteAddr().String()
	return s
}

func (f connFlag) String() string {
	s := ""
	if f&trustedConn != 0 {
		s += "-trusted"
	}
	if f&dynDialedConn != 0 {
		s += "-dyndial"
	}
	if f&staticDialedConn != 0 {
		s += "-staticdial"
	}
	if f&inboundConn != 0 {
		s += "-inbound"
	}
	if s != "" {
		s = s[1:]
	}
	return s
}

func (c *conn) is(f connFlag) bool {
	flags := connFlag(atomic.LoadInt32((*int32)(&c.flags)))
	return flags&f != 0
}

func (c *conn) set(f connFlag, val bool) {
	for {
		oldFlags := connFlag(atomic.LoadInt32((*int32)(&c.flags)))
		flags := oldFlags
		if val {
			flags |= f
		} else {
			flags &= ^f
		}
		if atomic.CompareAndSwapInt32((*int32)(&c.flags), int32(oldFlags), int32(flags)) {
			return
		}
	}
}

// LocalNode returns the local node record.
func (srv *Server) LocalNode() *enode.LocalNode {
	return srv.localnode
}

// Self returns the local node's endpoint information.
func (srv *Server) Self() *enode.Node {
	srv.lock.Lock()
	ln := srv.localnode
	srv.lock.Unlock()

	if ln == nil {
		return enode.NewV4(&srv.PrivateKey.PublicKey, net.ParseIP("0.0.0.0"), 0, 0)
	}
	return ln.Node()
}

// Peers returns all connected peers.
func (srv *Server) Peers() []*Peer {
	srv.peersMu.Lock()
	defer srv.peersMu.Unlock()

	ps := make([]*Peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		ps = append(ps, p)
	}
	return ps
}

// PeerCount returns the number of connected peers.
func (srv *Server) PeerCount() int {
	srv.peersMu.Lock()
	defer srv.peersMu.Unlock()
	return len(srv.peers)
}

// ProtocolState returns the shared state object of the named protocol, as
// created by its NetworkStateInitializer when the server started.
func (srv *Server) ProtocolState(name string) interface{} {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return srv.protoStates[name]
}

// Start starts running the server.
// Servers can not be re-used after stopping.
func (srv *Server) Start() (err error) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return errors.New("server already running")
	}
	if srv.PrivateKey == nil {
		return errors.New("Server.PrivateKey must be set to a non-nil key")
	}
	if srv.Logger == nil {
		srv.Logger = log.Root()
	}
	srv.log = srv.Logger
	if srv.MaxPeers == 0 {
		srv.MaxPeers = defaultMaxPeers
	}
	srv.quit = make(chan struct{})
	srv.peers = make(map[enode.ID]*Peer)
	srv.localnode = enode.NewLocalNode(srv.PrivateKey)

	pubkey := crypto.FromECDSAPub(&srv.PrivateKey.PublicKey)
	srv.ourHandshake = &protoHandshake{Version: baseProtocolVersion, Name: srv.Name, ID: pubkey[1:]}
	srv.protoStates = make(map[string]interface{})
	for _, p := range srv.Protocols {
		srv.ourHandshake.Caps = append(srv.ourHandshake.Caps, p.cap())
		if p.NetworkStateInitializer != nil {
			srv.protoStates[p.Name] = p.NetworkStateInitializer()
		}
	}

	if srv.ListenAddr != "" {
		if err := srv.setupListening(); err != nil {
			return err
		}
	}
	srv.running = true
	srv.log.Info("Started P2P networking", "self", srv.localnode.Node().URLv4())
	return nil
}

// Stop terminates the server and all active peer connections.
// It blocks until all active connections have been closed.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	if srv.listener != nil {
		// this unblocks listener Accept
		srv.listener.Close()
	}
	close(srv.quit)
	srv.lock.Unlock()

	for _, p := range srv.Peers() {
		p.Disconnect(DiscQuitting)
	}
	srv.loopWG.Wait()
}

func (srv *Server) setupListening() error {
	listener, err := net.Listen("tcp", srv.ListenAddr)
	if err != nil {
		return err
	}
	srv.listener = listener
	srv.ListenAddr = listener.Addr().String()

	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		srv.localnode.Set(enr.TCP(tcp.Port))
	}

	srv.loopWG.Add(1)
	go srv.listenLoop()
	return nil
}

// listenLoop runs in its own goroutine and accepts
// inbound connections.
func (srv *Server) listenLoop() {
	defer srv.loopWG.Done()
	srv.log.Debug("TCP listener up", "addr", srv.listener.Addr())

	for {
		fd, err := srv.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			srv.log.Debug("Accept error", "err", err)
			time.Sleep(time.Millisecond * 200)
			continue
		}
		srv.log.Trace("Accepted connection", "addr", fd.RemoteAddr())
		go srv.SetupConn(fd, inboundConn, nil)
	}
}

// Dial connects to the given node and runs the handshakes. The connection
// becomes a tracked peer if the checks pass.
func (srv *Server) Dial(dest *enode.Node) error {
	addr, ok := dest.TCPEndpoint()
	if !ok {
		return errors.New("node has no TCP endpoint")
	}
	fd, err := net.DialTimeout("tcp", addr.String(), defaultDialTimeout)
	if err != nil {
		return err
	}
	return srv.SetupConn(fd, dynDialedConn, dest)
}

// SetupConn runs the handshakes and attempts to add the connection
// as a peer. It returns when the connection has been added as a peer
// or the handshakes have failed.
func (srv *Server) SetupConn(fd net.Conn, flags connFlag, dialDest *enode.Node) error {
	c := &conn{fd: fd, flags: flags}
	if dialDest == nil {
		c.transport = newRLPX(fd, nil)
	} else {
		c.transport = newRLPX(fd, dialDest.Pubkey())
	}

	err := srv.setupConn(c, dialDest)
	if err != nil {
		if reason, ok := err.(DiscReason); ok {
			c.close(reason)
		} else {
			c.close(DiscProtocolError)
		}
		srv.log.Trace("Setting up connection failed", "addr", fd.RemoteAddr(), "err", err)
	}
	return err
}

func (srv *Server) setupConn(c *conn, dialDest *enode.Node) error {
	// Prevent leftover pending conns from entering the handshake.
	srv.lock.Lock()
	running := srv.running
	srv.lock.Unlock()
	if !running {
		return errServerStopped
	}

	// If dialing, figure out the remote public key.
	if dialDest != nil {
		if dialDest.Pubkey() == nil {
			return errors.New("dial destination doesn't have a secp256k1 public key")
		}
	}

	// Run the RLPx handshake.
	remotePubkey, err := c.doEncHandshake(srv.PrivateKey)
	if err != nil {
		srv.log.Trace("Failed RLPx handshake", "addr", c.fd.RemoteAddr(), "conn", c.flags, "err", err)
		return fmt.Errorf("rlpx handshake failed: %w", err)
	}
	if dialDest != nil {
		c.node = dialDest
	} else {
		c.node = nodeFromConn(remotePubkey, c.fd)
	}
	clog := srv.log.New("id", c.node.ID(), "addr", c.fd.RemoteAddr(), "conn", c.flags)

	// Run the capability negotiation handshake.
	phs, err := c.doProtoHandshake(srv.ourHandshake)
	if err != nil {
		clog.Trace("Failed p2p handshake", "err", err)
		return err
	}
	if id := c.node.ID(); !bytes.Equal(crypto.Keccak256(phs.ID), id[:]) {
		clog.Trace("Wrong devp2p handshake identity", "phsid", fmt.Sprintf("%x", phs.ID))
		return DiscInvalidIdentity
	}
	c.caps, c.name = phs.Caps, phs.Name

	return srv.addPeer(c, clog)
}

// addPeer checks the connection against the peer set and, if it passes,
// registers it and launches the peer main loop.
func (srv *Server) addPeer(c *conn, clog log.Logger) error {
	srv.peersMu.Lock()
	defer srv.peersMu.Unlock()

	switch {
	case !c.is(trustedConn) && len(srv.peers) >= srv.MaxPeers:
		return DiscTooManyPeers
	case srv.peers[c.node.ID()] != nil:
		return DiscAlreadyConnected
	case c.node.ID() == srv.localnode.ID():
		return DiscSelf
	case countMatchingProtocols(srv.Protocols, c.caps) == 0:
		return DiscUselessPeer
	}

	p := newPeer(srv.log, c, srv.Protocols)
	srv.peers[c.node.ID()] = p
	clog.Debug("Adding p2p peer", "peercount", len(srv.peers), "name", p.Name(), "addr", c.fd.RemoteAddr())

	srv.loopWG.Add(1)
	go srv.runPeer(p)
	return nil
}

// runPeer runs in its own goroutine for each peer.
func (srv *Server) runPeer(p *Peer) {
	defer srv.loopWG.Done()

	remoteRequested, err := p.run()

	srv.peersMu.Lock()
	delete(srv.peers, p.ID())
	peercount := len(srv.peers)
	srv.peersMu.Unlock()

	p.log.Debug("Removing p2p peer", "peercount", peercount,
		"duration", time.Duration(mclock.Now()-p.created).Round(time.Millisecond),
		"req", remoteRequested, "err", err)
}

func nodeFromConn(pubkey *ecdsa.PublicKey, conn net.Conn) *enode.Node {
	var ip net.IP
	var port int
	if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcp.IP
		port = tcp.Port
	}
	return enode.NewV4(pubkey, ip, port, port)
}
