// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	golz4 "github.com/DataDog/golz4"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// lzFast binds wire.LZFast to the cgo LZ4 bindings; it also doubles as the
// probe codec for every other tag.
type lzFast struct{}

func newLZFast() Codec { return lzFast{} }

func (lzFast) Tag() wire.Tag { return wire.LZFast }

func (lzFast) Compress(src []byte, level int) ([]byte, error) {
	dst := make([]byte, golz4.CompressBound(src))
	n, err := golz4.Compress(dst, src)
	if err != nil {
		return nil, fmt.Errorf("lz4: compress: %w", err)
	}
	return dst[:n], nil
}

func (lzFast) Decompress(src []byte, uLen int64) ([]byte, error) {
	dst := make([]byte, uLen)
	n, err := golz4.Uncompress(dst, src)
	if err != nil {
		return nil, fmt.Errorf("lz4: decompress: %w", err)
	}
	return dst[:n], nil
}
