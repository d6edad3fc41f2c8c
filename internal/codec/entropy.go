// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/klauspost/compress/huff0"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// entropy binds wire.Entropy to huff0, a standalone Huffman coder with no LZ
// stage of its own — the purest match for a tag distinct from LZFast/Dict.
// It is also the fallback target whenever the dictionary coder fails to
// compress a block.
type entropy struct{}

func newEntropy() Codec { return entropy{} }

func (entropy) Tag() wire.Tag { return wire.Entropy }

func (entropy) Compress(src []byte, level int) ([]byte, error) {
	var s huff0.Scratch
	out, _, err := huff0.Compress1X(src, &s)
	if err != nil {
		return nil, fmt.Errorf("huff0: compress: %w", err)
	}
	return out, nil
}

func (entropy) Decompress(src []byte, uLen int64) ([]byte, error) {
	var s huff0.Scratch
	s.Out = make([]byte, 0, uLen)
	out, err := huff0.Decompress1X(src, &s)
	if err != nil {
		return nil, fmt.Errorf("huff0: decompress: %w", err)
	}
	return out, nil
}
