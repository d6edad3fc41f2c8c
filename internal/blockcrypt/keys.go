// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package blockcrypt is the codec registry's encryption hook: per-block
// key/IV derivation and an AES-CBC cipher with ciphertext stealing, so
// encrypted payloads need no padding.
package blockcrypt

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashFunc constructs the hash used for key/IV derivation.
type HashFunc func() hash.Hash

// defaultHash wraps blake2b.New256 to match the hash.Hash-returning
// HashFunc signature (blake2b.New256 also returns an error, which is
// impossible for the no-key form it's called with here).
func defaultHash() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// DeriveKeyIV derives a per-block key and IV from a passphrase hash, an
// archive hash, and a per-block salt: key = H(passHash XOR archiveHash ||
// salt), iv = H(key XOR passHash || salt), matching the registry's "key and
// IV derived from (passphrase hash XOR archive hash) combined with a
// per-block salt, passed through the configured hash function". The
// default hash is blake2b-256, following the reference implementation's
// own golang.org/x/crypto dependency rather than a stdlib hash.
func DeriveKeyIV(passHash, archiveHash, salt []byte, hf HashFunc) (key, iv []byte) {
	if hf == nil {
		hf = defaultHash
	}
	mixed := xorBytes(passHash, archiveHash)

	kh := hf()
	kh.Write(mixed)
	kh.Write(salt)
	fullKey := kh.Sum(nil)

	ih := hf()
	ih.Write(xorBytes(fullKey, passHash))
	ih.Write(salt)
	fullIV := ih.Sum(nil)

	return fullKey[:keyLen(fullKey)], fullIV[:ivLen(fullIV)]
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func keyLen(b []byte) int {
	if len(b) >= 32 {
		return 32
	}
	return len(b)
}

func ivLen(b []byte) int {
	if len(b) >= 16 {
		return 16
	}
	return len(b)
}

// Zero overwrites key material in place once it is no longer needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
