// Copyright 2020 The go-ethereum Authors
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

package v5wire

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/ethereum/devp2p/common/hexutil"
	"github.com/ethereum/devp2p/crypto"
	"github.com/ethereum/devp2p/p2p/enode"
	"github.com/ethereum/devp2p/p2p/enr"
)

// The test vectors in this file are from the discv5 wire protocol specification.

var testChallengeData = hexutil.MustDecode("0x000000000000000000000000000000006469736376350001010102030405060708090a0b0c00180102030405060708090a0b0c0d0e0f100000000000000000")

func TestVector_ECDH(t *testing.T) {
	var (
		staticKey = hexPrivkey("0xfb757dc581730490a1d7a00deea65e9b1936924caaea8f44d476014856b68736")
		publicKey = hexPubkey(crypto.S256(), "0x039961e4c2356d61bedb83052c115d311acb3a96f5777296dcf297351130266231")
		want      = hexutil.MustDecode("0x033b11a2a1f214567e1537ce5e509ffd9b21373247f2a3ff6841f4976f53165e7e")
	)
	result := ecdh(staticKey, publicKey)
	check(t, "shared-secret", result, want)
}

func TestVector_KDF(t *testing.T) {
	var (
		ephKey     = hexPrivkey("0xfb757dc581730490a1d7a00deea65e9b1936924caaea8f44d476014856b68736")
		destPubkey = hexPubkey(crypto.S256(), "0x0317931e6e0840220642f230037d285d122bc59063221ef3226b1f403ddc69ca91")
		nodeIDA    = enode.HexID("0xaaaa8419e9f49d0083561b48287df592939a8d19947d8c0ef88f2a4856a69fbb")
		nodeIDB    = enode.HexID("0xbbbb9d047f0488c0b5a93c1c3f2d8bafc7c8ff337024a55434a0d0555de64db9")
	)
	s := deriveKeys(sha256.New, ephKey, destPubkey, nodeIDA, nodeIDB, testChallengeData)
	if s == nil {
		t.Fatal("key derivation failed")
	}
	check(t, "initiator-key", s.writeKey, hexutil.MustDecode("0xdccc82d81bd610f4f76d3ebe97a40571"))
	check(t, "recipient-key", s.readKey, hexutil.MustDecode("0xac74bb8773749920b0d3a8881c173ec5"))
}

func TestVector_IDSignature(t *testing.T) {
	var (
		key    = hexPrivkey("0xfb757dc581730490a1d7a00deea65e9b1936924caaea8f44d476014856b68736")
		destID = enode.HexID("0xbbbb9d047f0488c0b5a93c1c3f2d8bafc7c8ff337024a55434a0d0555de64db9")
		ephkey = hexutil.MustDecode("0x039961e4c2356d61bedb83052c115d311acb3a96f5777296dcf297351130266231")
	)
	sig, err := makeIDSignature(sha256.New(), key, testChallengeData, ephkey, destID)
	if err != nil {
		t.Fatal(err)
	}
	want := hexutil.MustDecode("0x94852a1e2318c4e5e9d422c98eaf19d1d90d876b29cd06ca7cb7546d0fff7b484fe86c09a064fe72bdbef73ba8e9c34df0cd2b53e9d65528c2c7f336d5dfc6e6")
	check(t, "id-signature", sig, want)
}

func TestIDSignatureRoundtrip(t *testing.T) {
	key, _ := crypto.GenerateKey()
	destID := enode.HexID("0xbbbb9d047f0488c0b5a93c1c3f2d8bafc7c8ff337024a55434a0d0555de64db9")
	ephkey := hexutil.MustDecode("0x039961e4c2356d61bedb83052c115d311acb3a96f5777296dcf297351130266231")

	sig, err := makeIDSignature(sha256.New(), key, testChallengeData, ephkey, destID)
	if err != nil {
		t.Fatal(err)
	}

	// Make a node record of the signing key to verify against.
	var r enr.Record
	if err := enode.SignV4(&r, key); err != nil {
		t.Fatal(err)
	}
	n, err := enode.New(enode.ValidSchemes, &r)
	if err != nil {
		t.Fatal(err)
	}
	if err := verifyIDSignature(sha256.New(), sig, n, testChallengeData, ephkey, destID); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
	sig[10] ^= 0x01
	if err := verifyIDSignature(sha256.New(), sig, n, testChallengeData, ephkey, destID); err != errInvalidNonceSig {
		t.Fatalf("tampered signature error %v, want %v", err, errInvalidNonceSig)
	}
}

func TestGCMRoundtrip(t *testing.T) {
	var (
		key      = make([]byte, aesKeySize)
		nonce    = make([]byte, gcmNonceSize)
		pt       = []byte("test message")
		authData = []byte("auth data")
	)
	ct, err := encryptGCM(nil, key, nonce, pt, authData)
	if err != nil {
		t.Fatal(err)
	}
	if len(ct) != len(pt)+16 {
		t.Fatalf("ciphertext length %d, want %d", len(ct), len(pt)+16)
	}
	dec, err := decryptGCM(key, nonce, ct, authData)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, pt) {
		t.Fatalf("plaintext mismatch: %x != %x", dec, pt)
	}
	// Decryption must fail with wrong auth data.
	if _, err := decryptGCM(key, nonce, ct, []byte("other data")); err == nil {
		t.Fatal("decryption succeeded with wrong auth data")
	}
}

func check(t *testing.T, what string, x, y []byte) {
	t.Helper()

	if !bytes.Equal(x, y) {
		t.Errorf("wrong %s: %#x != %#x", what, x, y)
	} else {
		t.Logf("%s = %#x", what, x)
	}
}

func hexPrivkey(input string) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(input, "0x"))
	if err != nil {
		panic(err)
	}
	return key
}

func hexPubkey(curve elliptic.Curve, input string) *ecdsa.PublicKey {
	key, err := DecodePubkey(curve, hexutil.MustDecode(input))
	if err != nil {
		panic(err)
	}
	return key
}
