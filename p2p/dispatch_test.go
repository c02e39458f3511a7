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
	"testing"

	"github.com/stretchr/testify/assert"
)

func nopSpecs(n int) []MsgSpec {
	specs := make([]MsgSpec, n)
	for i := range specs {
		specs[i].Name = "msg"
	}
	return specs
}

func TestMatchProtocols(t *testing.T) {
	tests := []struct {
		Name        string
		Local       []Protocol
		Remote      []Cap
		WantOffsets []int64
	}{
		{
			Name:        "no remote caps",
			Local:       []Protocol{{Name: "a", Messages: nopSpecs(3)}},
			WantOffsets: []int64{-1},
		},
		{
			Name:        "no mutual protocol",
			Local:       []Protocol{{Name: "a", Messages: nopSpecs(3)}},
			Remote:      []Cap{{Name: "b"}},
			WantOffsets: []int64{-1},
		},
		{
			Name:        "single match",
			Local:       []Protocol{{Name: "a", Version: 1, Messages: nopSpecs(3)}},
			Remote:      []Cap{{Name: "a", Version: 1}},
			WantOffsets: []int64{16},
		},
		{
			Name: "version mismatch is not a match",
			Local: []Protocol{
				{Name: "a", Version: 2, Messages: nopSpecs(3)},
			},
			Remote:      []Cap{{Name: "a", Version: 1}},
			WantOffsets: []int64{-1},
		},
		{
			Name: "ranges in declaration order",
			Local: []Protocol{
				{Name: "a", Version: 1, Messages: nopSpecs(3)},
				{Name: "b", Version: 2, Messages: nopSpecs(5)},
				{Name: "c", Version: 1, Messages: nopSpecs(2)},
			},
			Remote: []Cap{
				{Name: "c", Version: 1},
				{Name: "a", Version: 1},
				{Name: "b", Version: 2},
			},
			WantOffsets: []int64{16, 19, 24},
		},
		{
			Name: "unaccepted protocol does not consume ids",
			Local: []Protocol{
				{Name: "a", Version: 1, Messages: nopSpecs(3)},
				{Name: "b", Version: 2, Messages: nopSpecs(5)},
				{Name: "c", Version: 1, Messages: nopSpecs(2)},
			},
			Remote: []Cap{
				{Name: "a", Version: 1},
				{Name: "c", Version: 1},
			},
			WantOffsets: []int64{16, -1, 19},
		},
		{
			Name: "both versions announced, both matched",
			Local: []Protocol{
				{Name: "a", Version: 1, Messages: nopSpecs(3)},
				{Name: "a", Version: 2, Messages: nopSpecs(3)},
			},
			Remote: []Cap{
				{Name: "a", Version: 1},
				{Name: "a", Version: 2},
			},
			WantOffsets: []int64{16, 19},
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			entries := matchProtocols(tt.Local, tt.Remote)
			if len(entries) != len(tt.Local) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.Local))
			}
			for i, e := range entries {
				assert.Equal(t, tt.WantOffsets[i], e.offset, "offset of protocol %q", tt.Local[i].Name)
			}
		})
	}
}

func TestBuildMsgTable(t *testing.T) {
	protocols := []Protocol{
		{Name: "a", Version: 1, Messages: nopSpecs(3)},
		{Name: "b", Version: 1, Messages: nopSpecs(2)},
		{Name: "c", Version: 1, Messages: nopSpecs(4)},
	}
	caps := []Cap{{Name: "a", Version: 1}, {Name: "c", Version: 1}}

	table := buildMsgTable(matchProtocols(protocols, caps))
	if len(table) != 23 {
		t.Fatalf("table size %d, want 23", len(table))
	}

	// Base protocol ids are not routed through the table.
	for code := 0; code < 16; code++ {
		assert.Nil(t, table[code], "code %d", code)
	}
	for code, wantProto := range map[int]string{16: "a", 17: "a", 18: "a", 19: "c", 22: "c"} {
		if assert.NotNil(t, table[code], "code %d", code) {
			assert.Equal(t, wantProto, table[code].proto.Name, "code %d", code)
		}
	}
	assert.Equal(t, uint64(2), table[18].localID)
	assert.Equal(t, uint64(3), table[22].localID)
}

func TestCountMatchingProtocols(t *testing.T) {
	protocols := []Protocol{
		{Name: "a", Version: 1},
		{Name: "b", Version: 2},
	}
	assert.Equal(t, 0, countMatchingProtocols(protocols, []Cap{{Name: "a", Version: 3}}))
	assert.Equal(t, 1, countMatchingProtocols(protocols, []Cap{{Name: "a", Version: 1}}))
	assert.Equal(t, 2, countMatchingProtocols(protocols, []Cap{{Name: "a", Version: 1}, {Name: "b", Version: 2}}))
}
