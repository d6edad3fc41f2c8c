// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package codec is the codec registry: a uniform wrapper around each
// back-end compressor/decompressor, implementing the LZ probe and the
// "incompressible, store raw" fallback described by the writer engine.
package codec

import (
	"fmt"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// Compressor is satisfied by any back end that can compress a block.
type Compressor interface {
	Compress(src []byte, level int) ([]byte, error)
}

// Decompressor is satisfied by any back end that can decompress a block
// given the recorded uncompressed length.
type Decompressor interface {
	Decompress(src []byte, uLen int64) ([]byte, error)
}

// Codec is a single back-end compressor/decompressor pair bound to a tag.
type Codec interface {
	Tag() wire.Tag
	Compressor
	Decompressor
}

// UnknownTagError is returned when no codec is registered for a tag.
type UnknownTagError struct {
	Tag wire.Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("codec: no backend registered for tag %v", e.Tag)
}

// LengthMismatchError is returned when a decoded payload's length does not
// match the u_len recorded in its header.
type LengthMismatchError struct {
	Want, Got int64
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("codec: decoded length %d does not match recorded length %d", e.Got, e.Want)
}

// Registry binds each wire.Tag to a concrete Codec.
type Registry struct {
	codecs    map[wire.Tag]Codec
	threshold float64
}

// NewRegistry constructs a Registry with all five back ends bound and the
// given incompressibility threshold for the LZ probe (see probe.go).
func NewRegistry(threshold float64) *Registry {
	r := &Registry{codecs: make(map[wire.Tag]Codec, 5), threshold: threshold}
	for _, c := range []Codec{newLZFast(), newDict(), newEntropy(), newRange(), newMixing()} {
		r.codecs[c.Tag()] = c
	}
	return r
}

// Compress applies tag's codec to src. It runs the LZ probe first for any
// tag other than LZFast (unless the threshold disables it), and applies the store-raw fallback uniformly: if
// the codec fails, or does not shrink the block, the returned tag is
// wire.None and out is src itself. A DICT failure is retried once against
// ENTROPY before falling back to store-raw, per the registry's back-end
// quirk.
func (r *Registry) Compress(tag wire.Tag, src []byte, level int) (wire.Tag, []byte, error) {
	if tag == wire.None {
		return wire.None, src, nil
	}

	if tag != wire.LZFast && r.threshold <= 1.0 {
		lz, ok := r.codecs[wire.LZFast]
		if !ok {
			return wire.None, nil, &UnknownTagError{Tag: wire.LZFast}
		}
		compressible, err := probe(lz, src, r.threshold, level)
		if err != nil {
			return wire.None, nil, err
		}
		if !compressible {
			return wire.None, src, nil
		}
	}

	c, ok := r.codecs[tag]
	if !ok {
		return wire.None, nil, &UnknownTagError{Tag: tag}
	}

	out, err := c.Compress(src, level)
	if err != nil && tag == wire.Dict {
		if ent, ok := r.codecs[wire.Entropy]; ok {
			if eo, eerr := ent.Compress(src, level); eerr == nil {
				tag, out, err = wire.Entropy, eo, nil
			}
		}
	}
	if err != nil {
		// Encode-time codec failures are demoted to store-raw rather than
		// treated as fatal; only decode-time failures are fatal.
		return wire.None, src, nil
	}
	if out == nil || len(out) >= len(src) {
		return wire.None, src, nil
	}
	return tag, out, nil
}

// Decompress inverts Compress for the given tag.
func (r *Registry) Decompress(tag wire.Tag, src []byte, uLen int64) ([]byte, error) {
	if tag == wire.None {
		if int64(len(src)) != uLen {
			return nil, &LengthMismatchError{Want: uLen, Got: int64(len(src))}
		}
		return src, nil
	}
	c, ok := r.codecs[tag]
	if !ok {
		return nil, &UnknownTagError{Tag: tag}
	}
	out, err := c.Decompress(src, uLen)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) != uLen {
		return nil, &LengthMismatchError{Want: uLen, Got: int64(len(out))}
	}
	return out, nil
}
