// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// rangeCoder binds wire.Range to LZMA's range coder, the textbook
// range-coder variant the registry contract names.
type rangeCoder struct{}

func newRange() Codec { return rangeCoder{} }

func (rangeCoder) Tag() wire.Tag { return wire.Range }

// dictCapForLevel scales the registry's 1-9 level knob into an LZMA
// dictionary capacity: a larger dictionary trades memory for ratio.
func dictCapForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	return 1 << uint(16+level) // 128KiB (level 1) .. 32MiB (level 9)
}

func (rangeCoder) Compress(src []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{DictCap: dictCapForLevel(level)}
	w, err := lzma.NewWriter2Config(&buf, cfg)
	if err != nil {
		return nil, fmt.Errorf("lzma: new writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lzma: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma: close: %w", err)
	}
	return buf.Bytes(), nil
}

func (rangeCoder) Decompress(src []byte, uLen int64) ([]byte, error) {
	r, err := lzma.NewReader2(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("lzma: new reader: %w", err)
	}
	out := make([]byte, uLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("lzma: decompress: %w", err)
	}
	return out, nil
}
