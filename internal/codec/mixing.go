// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// mixing binds wire.Mixing to zstd. No context-mixing (PAQ-style) coder
// exists anywhere in the dependency pack this engine draws from; zstd is
// used as a documented substitution for the "context-mixing coder" the
// registry contract names (see DESIGN.md), with its encoder level scaled
// from the registry's 1-9 level knob.
type mixing struct {
	decOnce sync.Once
	dec     *zstd.Decoder
}

func newMixing() Codec { return &mixing{} }

func (*mixing) Tag() wire.Tag { return wire.Mixing }

// zstdLevel maps the registry's 1-9 level knob onto zstd's four named
// encoder speed/ratio tiers.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 4:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (m *mixing) decoder() (*zstd.Decoder, error) {
	var err error
	m.decOnce.Do(func() {
		m.dec, err = zstd.NewReader(nil)
	})
	if m.dec == nil {
		return nil, err
	}
	return m.dec, nil
}

// Compress builds a fresh encoder per call rather than caching one, unlike
// decoder(): the encoder's level is fixed at construction, and a cached
// encoder would silently pin every future call to whichever level first
// created it.
func (m *mixing) Compress(src []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd: new encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func (m *mixing) Decompress(src []byte, uLen int64) ([]byte, error) {
	dec, err := m.decoder()
	if err != nil {
		return nil, fmt.Errorf("zstd: new decoder: %w", err)
	}
	out, err := dec.DecodeAll(src, make([]byte, 0, uLen))
	if err != nil {
		return nil, fmt.Errorf("zstd: decompress: %w", err)
	}
	return out, nil
}
