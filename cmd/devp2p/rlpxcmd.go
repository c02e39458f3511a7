// Copyright 2020 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"net"

	"github.com/ethereum/devp2p/crypto"
	"github.com/ethereum/devp2p/p2p"
	"github.com/ethereum/devp2p/p2p/rlpx"
	"github.com/ethereum/devp2p/rlp"
	"github.com/urfave/cli/v2"
)

var (
	rlpxCommand = &cli.Command{
		Name:  "rlpx",
		Usage: "RLPx Commands",
		Subcommands: []*cli.Command{
			rlpxPingCommand,
		},
	}
	rlpxPingCommand = &cli.Command{
		Name:      "ping",
		Usage:     "Perform a RLPx handshake and exchange hellos with the given node",
		ArgsUsage: "<node>",
		Action:    rlpxPing,
	}
)

// devp2pHello is the RLP structure of the devp2p protocol handshake.
type devp2pHello struct {
	Version    uint64
	Name       string
	Caps       []p2p.Cap
	ListenPort uint64
	ID         []byte // secp256k1 public key

	// Ignore additional fields (for forward compatibility).
	Rest []rlp.RawValue `rlp:"tail"`
}

func (h devp2pHello) String() string {
	l := fmt.Sprintf("%s %d", h.Name, h.Version)
	for _, c := range h.Caps {
		l = fmt.Sprintf("%s, %s", l, c)
	}
	return l
}

func rlpxPing(ctx *cli.Context) error {
	n := getNodeArg(ctx)

	tcpEndpoint, ok := n.TCPEndpoint()
	if !ok {
		return fmt.Errorf("node has no TCP endpoint")
	}
	fd, err := net.Dial("tcp", tcpEndpoint.String())
	if err != nil {
		return err
	}
	defer fd.Close()

	conn := rlpx.NewConn(fd, n.Pubkey())
	ourKey, _ := crypto.GenerateKey()
	_, err = conn.Handshake(ourKey)
	if err != nil {
		return err
	}
	defer conn.Close()

	pub := crypto.FromECDSAPub(&ourKey.PublicKey)
	ourHello := devp2pHello{
		Version: 5,
		Name:    "devp2p-tool",
		ID:      pub[1:],
	}
	helloEnc, err := rlp.EncodeToBytes(ourHello)
	if err != nil {
		return err
	}
	if _, err := conn.Write(0, helloEnc); err != nil {
		return err
	}

	code, data, _, err := conn.Read()
	if err != nil {
		return err
	}
	switch code {
	case 0:
		var hello devp2pHello
		if err := rlp.NewStream(data).Decode(&hello); err != nil {
			return fmt.Errorf("invalid handshake: %v", err)
		}
		fmt.Printf("received hello: %v\n", hello)
	case 1:
		var reason struct{ Reason p2p.DiscReason }
		if err := rlp.NewStream(data).Decode(&reason); err == nil {
			return fmt.Errorf("disconnected before hello: %v", reason.Reason)
		}
		return fmt.Errorf("disconnected before hello")
	default:
		return fmt.Errorf("invalid message code %d, expected handshake (code zero)", code)
	}
	return nil
}
