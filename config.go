// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package rzstream implements the multiplexed compression stream engine: N
// parallel logical byte streams, segmented into bounded blocks, dispatched
// to a bounded pool of workers applying one of several back-end codecs, and
// interleaved into an archive as a chain of per-stream linked records.
package rzstream

import (
	"hash"
	"log"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// CodecTag identifies a back-end codec. It is an alias of the wire format's
// own tag type so callers never need to import the internal package.
type CodecTag = wire.Tag

// The five back-end codec tags, plus None for the store-raw fallback.
const (
	TagNone    = wire.None
	TagLZFast  = wire.LZFast
	TagDict    = wire.Dict
	TagEntropy = wire.Entropy
	TagRange   = wire.Range
	TagMixing  = wire.Mixing
)

// StreamBufsizeMin is the smallest block size the memory sizer will settle
// on, regardless of how little memory the probe found available.
const StreamBufsizeMin = 64 * 1024

// Progress reports one correctly-ordered block written by the writer
// engine, carrying over the reference implementation's decompression-only
// Progress type to the writer side. The reader engine sends no Progress
// events.
type Progress struct {
	Block      uint64
	Stream     int
	Compressed int
	Size       int
}

// Config carries the engine's configuration record: back-end selection,
// worker count, compression level, verbosity, incompressibility threshold,
// and optional encryption key material.
type Config struct {
	// Backend selects which codec tag WriteStream applies to each flushed
	// block.
	Backend CodecTag
	// Level is the codec compression level, in [1,9].
	Level int
	// Workers is the size of the worker ring (writer) or worker pool
	// (reader). Defaults to runtime.GOMAXPROCS(-1) if <= 0.
	Workers int
	// Threshold gates the LZ probe: a probed window is accepted as
	// compressible once its compressed size is at most Threshold times the
	// window size. Threshold > 1.0 disables the probe (always
	// compressible).
	Threshold float64
	// Nice is an advisory scheduling priority hint, carried through
	// unchanged; the engine does not interpret it.
	Nice int
	// KeyMaterial, if non-empty, enables the per-block encryption hook.
	KeyMaterial []byte
	// HashFunc selects the hash used for key/IV derivation when
	// KeyMaterial is set. Defaults to blake2b-256 if nil.
	HashFunc func() hash.Hash
	// LegacyHeader selects the 13-byte legacy record header instead of the
	// current 25-byte layout.
	LegacyHeader bool
	// BlockLimit is the caller-supplied upper bound on block size passed
	// to the memory sizer; 0 selects the sizer's own default.
	BlockLimit int64

	// Verbose and Logger follow the reference implementation's own
	// decompressorOpts.verbose/dc.trace pattern, generalized to a
	// structured *log.Logger rather than the package-level log functions.
	Verbose bool
	Logger  *log.Logger

	// ProgressCh, if non-nil, receives a Progress value for every block
	// the writer engine writes, in stream order. The reader engine does not
	// send to it.
	ProgressCh chan<- Progress
}

// Option configures a Config, following the reference implementation's own
// functional-option style (BZVerbose, BZConcurrency, BZSendUpdates).
type Option func(*Config)

// WithBackend selects the codec tag applied to flushed blocks.
func WithBackend(tag CodecTag) Option {
	return func(c *Config) { c.Backend = tag }
}

// WithLevel sets the codec compression level.
func WithLevel(level int) Option {
	return func(c *Config) { c.Level = level }
}

// WithWorkers sets the worker ring/pool size.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithThreshold sets the LZ probe's incompressibility threshold.
func WithThreshold(t float64) Option {
	return func(c *Config) { c.Threshold = t }
}

// WithKeyMaterial enables the per-block encryption hook.
func WithKeyMaterial(key []byte) Option {
	return func(c *Config) { c.KeyMaterial = key }
}

// WithLegacyHeader selects the 13-byte legacy record header.
func WithLegacyHeader(legacy bool) Option {
	return func(c *Config) { c.LegacyHeader = legacy }
}

// WithBlockLimit sets the caller-supplied block size upper bound.
func WithBlockLimit(n int64) Option {
	return func(c *Config) { c.BlockLimit = n }
}

// WithVerbose controls verbose diagnostic logging.
func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// WithLogger sets the destination for verbose diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithProgress sets the channel progress events are sent to.
func WithProgress(ch chan<- Progress) Option {
	return func(c *Config) { c.ProgressCh = ch }
}

func newConfig(opts []Option) Config {
	c := Config{
		Backend:   TagLZFast,
		Level:     6,
		Threshold: 0.95,
		Logger:    log.Default(),
	}
	for _, fn := range opts {
		fn(&c)
	}
	return c
}

func (c *Config) trace(format string, args ...interface{}) {
	if c.Verbose && c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}
