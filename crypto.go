// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/cosnicolaou/rzstream/internal/blockcrypt"
	"github.com/cosnicolaou/rzstream/internal/wire"
)

// archiveHash derives a stable per-archive value from the archive's open
// parameters, standing in for the "archive hash" the encryption hook mixes
// with the passphrase hash. A writer and reader opened against the same
// archive (same N and starting offset) always agree on it.
func archiveHash(n int, initialPos int64) []byte {
	h := sha256.New()
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], uint64(n))
	binary.LittleEndian.PutUint64(b[8:16], uint64(initialPos))
	h.Write(b[:])
	return h.Sum(nil)
}

// blockSalt derives the per-block salt from a stream's monotonic record
// sequence number (1-based): the writer assigns it when a block is flushed,
// and the reader reconstructs the same number by counting records as it
// walks the stream's chain, so both sides agree without needing to store
// the salt on disk.
func blockSalt(seq uint64) []byte {
	return wire.PutOffset(int64(seq))
}

func encryptBlock(hf func() hash.Hash, passHash, arcHash []byte, seq uint64, payload []byte) ([]byte, error) {
	blockKey, iv := blockcrypt.DeriveKeyIV(passHash, arcHash, blockSalt(seq), hf)
	defer blockcrypt.Zero(blockKey)
	return blockcrypt.EncryptCTS(blockKey, iv, payload)
}

func decryptBlock(hf func() hash.Hash, passHash, arcHash []byte, seq uint64, payload []byte) ([]byte, error) {
	blockKey, iv := blockcrypt.DeriveKeyIV(passHash, arcHash, blockSalt(seq), hf)
	defer blockcrypt.Zero(blockKey)
	return blockcrypt.DecryptCTS(blockKey, iv, payload)
}

func passphraseHash(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}
