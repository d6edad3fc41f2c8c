// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const blockSize = aes.BlockSize

// EncryptCTS encrypts plaintext with AES-CBC. When plaintext is not a
// multiple of the block size, the final two blocks are produced with
// ciphertext stealing (CS3) instead of padding, so the ciphertext is exactly
// len(plaintext) bytes.
func EncryptCTS(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: %w", err)
	}
	if len(iv) != blockSize {
		return nil, fmt.Errorf("blockcrypt: iv must be %d bytes, got %d", blockSize, len(iv))
	}
	l := len(plaintext)
	if l == 0 {
		return nil, fmt.Errorf("blockcrypt: empty plaintext")
	}

	if l%blockSize == 0 {
		out := make([]byte, l)
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
		return out, nil
	}
	if l < blockSize {
		return nil, fmt.Errorf("blockcrypt: %d-byte plaintext shorter than one block, ciphertext stealing needs at least %d", l, blockSize)
	}

	d := l % blockSize
	full := l - blockSize - d

	out := make([]byte, l)
	if full > 0 {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[:full], plaintext[:full])
	}

	cPrev := iv
	if full > 0 {
		cPrev = out[full-blockSize : full]
	}

	lastFull := plaintext[full : full+blockSize]
	eLastFull := make([]byte, blockSize)
	block.Encrypt(eLastFull, xorBlock(lastFull, cPrev))

	stolen := append([]byte(nil), eLastFull[:d]...)

	dBlock := make([]byte, blockSize)
	copy(dBlock, plaintext[full+blockSize:])
	copy(dBlock[d:], eLastFull[d:])

	cSecondLast := make([]byte, blockSize)
	block.Encrypt(cSecondLast, xorBlock(dBlock, cPrev))

	copy(out[full:full+blockSize], cSecondLast)
	copy(out[full+blockSize:], stolen)

	return out, nil
}

// DecryptCTS inverts EncryptCTS.
func DecryptCTS(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blockcrypt: %w", err)
	}
	if len(iv) != blockSize {
		return nil, fmt.Errorf("blockcrypt: iv must be %d bytes, got %d", blockSize, len(iv))
	}
	l := len(ciphertext)
	if l == 0 {
		return nil, fmt.Errorf("blockcrypt: empty ciphertext")
	}

	if l%blockSize == 0 {
		out := make([]byte, l)
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
		return out, nil
	}
	if l < blockSize {
		return nil, fmt.Errorf("blockcrypt: %d-byte ciphertext shorter than one block", l)
	}

	d := l % blockSize
	full := l - blockSize - d

	out := make([]byte, l)
	if full > 0 {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out[:full], ciphertext[:full])
	}

	cPrev := iv
	if full > 0 {
		cPrev = ciphertext[full-blockSize : full]
	}

	cSecondLast := ciphertext[full : full+blockSize]
	stolen := ciphertext[full+blockSize:]

	decrypted := make([]byte, blockSize)
	block.Decrypt(decrypted, cSecondLast)
	dBlock := xorBlock(decrypted, cPrev)

	tail := dBlock[:d]
	eLastFullTail := dBlock[d:]

	eLastFull := make([]byte, blockSize)
	copy(eLastFull, stolen)
	copy(eLastFull[d:], eLastFullTail)

	decrypted2 := make([]byte, blockSize)
	block.Decrypt(decrypted2, eLastFull)
	lastFull := xorBlock(decrypted2, cPrev)

	copy(out[full:full+blockSize], lastFull)
	copy(out[full+blockSize:], tail)

	return out, nil
}

func xorBlock(a, b []byte) []byte {
	out := make([]byte, blockSize)
	for i := 0; i < blockSize; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
