// Copyright (c) 2013 Kyle Isom <kyle@tyrfingr.is>
// Copyright (c) 2012 The Go Authors. All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
//    * Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//    * Redistributions in binary form must reproduce the above
// copyright notice, this list of conditions and the following disclaimer
// in the documentation and/or other materials provided with the
// distribution.
//    * Neither the name of Google Inc. nor the names of its
// contributors may be used to endorse or promote products derived from
// this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package ecies

// This file contains parameters for ECIES encryption, specifying the
// symmetric encryption and HMAC parameters.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/ethereum/devp2p/crypto"
)

// DefaultCurve is the curve keys are generated on when no other curve
// is specified.
var DefaultCurve = crypto.S256()

var ErrUnsupportedECIESParameters = fmt.Errorf("ecies: unsupported ECIES parameters")

// ECIESParams bundles the symmetric cipher and hash used by the scheme.
type ECIESParams struct {
	Hash      func() hash.Hash // hash function
	Cipher    func([]byte) (cipher.Block, error)
	BlockSize int // block size of symmetric cipher
	KeyLen    int // length of symmetric key
}

var (
	ECIES_AES128_SHA256 = &ECIESParams{
		Hash:      sha256.New,
		Cipher:    aes.NewCipher,
		BlockSize: aes.BlockSize,
		KeyLen:    16,
	}

	ECIES_AES256_SHA256 = &ECIESParams{
		Hash:      sha256.New,
		Cipher:    aes.NewCipher,
		BlockSize: aes.BlockSize,
		KeyLen:    32,
	}

	ECIES_AES256_SHA512 = &ECIESParams{
		Hash:      sha512.New,
		Cipher:    aes.NewCipher,
		BlockSize: aes.BlockSize,
		KeyLen:    32,
	}
)

var paramsFromCurve = map[crypto.EllipticCurve]*ECIESParams{
	crypto.S256(): ECIES_AES128_SHA256,
}

// ParamsFromCurve selects parameters optimal for the selected elliptic
// curve. Only the curves listed in paramsFromCurve are supported.
func ParamsFromCurve(curve crypto.EllipticCurve) *ECIESParams {
	return paramsFromCurve[curve]
}

func pubkeyParams(pub *PublicKey) (*ECIESParams, error) {
	params := pub.Params
	if params == nil {
		if params = ParamsFromCurve(pub.EllipticCurve); params == nil {
			return nil, ErrUnsupportedECIESParameters
		}
	}
	return params, nil
}
