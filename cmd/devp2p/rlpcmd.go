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
	"io"
	"strings"

	"github.com/ethereum/devp2p/common/hexutil"
	"github.com/ethereum/devp2p/rlp"
	"github.com/urfave/cli/v2"
)

var (
	rlpCommand = &cli.Command{
		Name:  "rlp",
		Usage: "RLP helpers",
		Subcommands: []*cli.Command{
			rlpDecodeCommand,
		},
	}
	rlpDecodeCommand = &cli.Command{
		Name:      "decode",
		Usage:     "Pretty-prints an RLP-encoded value",
		ArgsUsage: "<hex>",
		Action:    rlpDecode,
	}
)

func rlpDecode(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("missing RLP data as command-line argument")
	}
	input := ctx.Args().First()
	if !strings.HasPrefix(input, "0x") {
		input = "0x" + input
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return err
	}

	s := rlp.NewStream(data)
	for {
		if err := rlpDump(s, 0); err != nil {
			if err == io.EOF {
				break
			}
			fmt.Println()
			return err
		}
		fmt.Println()
	}
	return nil
}

func rlpDump(s *rlp.Stream, depth int) error {
	kind, size, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case rlp.Byte, rlp.String:
		str, err := s.Bytes()
		if err != nil {
			return err
		}
		if len(str) == 0 || !isASCII(str) {
			fmt.Printf("%s%#x", ws(depth), str)
		} else {
			fmt.Printf("%s%q", ws(depth), str)
		}
	case rlp.List:
		s.List()
		defer s.ListEnd()
		if size == 0 {
			fmt.Print(ws(depth) + "[]")
		} else {
			fmt.Println(ws(depth) + "[")
			for i := 0; ; i++ {
				if i > 0 {
					fmt.Print(",\n")
				}
				if err := rlpDump(s, depth+1); err == rlp.EOL {
					break
				} else if err != nil {
					return err
				}
			}
			fmt.Print(ws(depth) + "]")
		}
	}
	return nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c < 32 || c > 126 {
			return false
		}
	}
	return true
}

func ws(n int) string {
	return strings.Repeat("  ", n)
}
