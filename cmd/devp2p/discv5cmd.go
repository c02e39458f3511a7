// Copyright 2019 The go-ethereum Authors
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
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/devp2p/common/hexutil"
	"github.com/ethereum/devp2p/common/mclock"
	"github.com/ethereum/devp2p/crypto"
	"github.com/ethereum/devp2p/p2p/discover/v5wire"
	"github.com/ethereum/devp2p/p2p/enode"
	"github.com/urfave/cli/v2"
)

var (
	discv5Command = &cli.Command{
		Name:  "discv5",
		Usage: "Node Discovery v5 tools",
		Subcommands: []*cli.Command{
			discv5DecodeCommand,
		},
	}
	discv5DecodeCommand = &cli.Command{
		Name:      "decode",
		Usage:     "Decodes a discv5 packet addressed to the given node key",
		ArgsUsage: "<hex>",
		Flags: []cli.Flag{
			nodekeyFlag,
			addrFlag,
		},
		Action: discv5Decode,
	}

	nodekeyFlag = &cli.StringFlag{
		Name:     "nodekey",
		Usage:    "Hex-encoded secp256k1 private key of the receiving node",
		Required: true,
	}
	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "UDP address the packet was received from",
		Value: "127.0.0.1:30303",
	}
)

func discv5Decode(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("missing packet data as command-line argument")
	}
	input := ctx.Args().First()
	if !strings.HasPrefix(input, "0x") {
		input = "0x" + input
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return err
	}
	key, err := crypto.HexToECDSA(ctx.String(nodekeyFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid node key: %v", err)
	}

	ln := enode.NewLocalNode(key)
	codec := v5wire.NewCodec(ln, key, mclock.System{}, nil)
	src, node, packet, err := codec.Decode(data, ctx.String(addrFlag.Name))
	if err != nil {
		return fmt.Errorf("cannot decode packet: %v", err)
	}

	fmt.Printf("packet type: %s\n", packet.Name())
	fmt.Printf("source node: %v\n", src)
	if node != nil {
		fmt.Printf("source record: %v\n", node)
	}
	spew.Dump(packet)
	return nil
}
