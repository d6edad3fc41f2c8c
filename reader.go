// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/cosnicolaou/rzstream/internal/codec"
	"github.com/cosnicolaou/rzstream/internal/ring"
	"github.com/cosnicolaou/rzstream/internal/wire"
)

// prefetchDepth bounds how many decode jobs a single stream keeps
// outstanding against the shared pool at once.
const prefetchDepth = 2

// readerStream is a single stream's reader-side state: the chain position
// still to be read, the record sequence number to assign the next submitted
// job (also used to derive its decryption salt), the buffer currently being
// drained by ReadStream, and the bookkeeping CloseStreamIn needs to know how
// far this stream's consumed data reaches on disk.
type readerStream struct {
	asm *ring.Assembler

	nextOffset int64 // 0 once the chain walk has reached the last record
	submitted  uint64
	inFlight   int
	eos        bool // fillBuffer has seen nextOffset == 0; no more to submit
	done       bool // Next() has reported end of stream; ReadStream stops

	cur    []byte
	curOff int

	pending     []int64 // end-of-payload offsets for submitted, undelivered records
	consumedEnd int64   // end-of-payload offset of the last record copied out
}

// Reader is the reader engine (component 4.4): it walks each stream's chain
// of records, dispatches their payloads to a shared pool of decode workers,
// and restores per-stream order before handing bytes back to the caller.
//
// Unlike the reference implementation's single shared Decompressor, one Pool
// here backs every stream opened against the archive, and each stream owns
// its own Assembler to recover its own order independently of the others.
type Reader struct {
	ctx context.Context
	cfg Config

	f          io.ReaderAt
	initialPos int64
	n          int
	legacy     bool

	afterSentinels int64 // offset immediately following the N sentinel records

	pool    *ring.Pool
	reg     *codec.Registry
	streams []readerStream

	passHash []byte
	arcHash  []byte
}

// OpenStreamIn reads N sentinel records starting at initialPos and arms the
// reader engine. initialPos is supplied explicitly, rather than queried via
// Seek, because io.ReaderAt carries no notion of a current position and the
// engine's concurrent reads must not disturb one.
func OpenStreamIn(ctx context.Context, f io.ReaderAt, initialPos int64, n int, opts ...Option) (*Reader, error) {
	if n <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("stream count must be positive, got %d", n)}
	}
	cfg := newConfig(opts)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(-1)
	}

	r := &Reader{
		ctx:        ctx,
		cfg:        cfg,
		f:          f,
		initialPos: initialPos,
		n:          n,
		legacy:     cfg.LegacyHeader,
		pool:       ring.NewPool(ctx, workers),
		reg:        codec.NewRegistry(cfg.Threshold),
		streams:    make([]readerStream, n),
	}
	if len(cfg.KeyMaterial) > 0 {
		r.passHash = passphraseHash(cfg.KeyMaterial)
		r.arcHash = archiveHash(n, initialPos)
	}

	nextOffsets, legacy, start, err := r.readSentinels()
	if err != nil {
		return nil, err
	}
	r.legacy = legacy
	r.afterSentinels = start + int64(n)*wire.Size(legacy)
	r.cfg.trace("open_stream_in: n=%d legacy=%v start=%d after_sentinels=%d", n, legacy, start, r.afterSentinels)

	for s := 0; s < n; s++ {
		next := nextOffsets[s]
		if legacy {
			// The legacy layout has no on-disk next field, so every stream
			// starts its chain walk immediately after the sentinel block;
			// end of stream is discovered lazily, by a failed header read,
			// not declared up front.
			next = r.afterSentinels
		}
		r.streams[s] = readerStream{
			asm:         ring.NewAssembler(ctx, workers),
			nextOffset:  next,
			consumedEnd: r.afterSentinels,
		}
		if !legacy && next == 0 {
			r.streams[s].asm.CloseAfter(0)
		}
	}

	return r, nil
}

// readSentinels reads N sentinel records in the configured format, starting
// at initialPos. If that fails and the engine was not explicitly opened in
// legacy mode, it retries once assuming the legacy 13-byte layout,
// auto-detecting archives written before the next field existed. If every
// attempt at initialPos fails and the 13 bytes there are all zero, it
// retries once more 13 bytes further on, working around archives whose very
// first record is preceded by a legacy-sized block of zero padding.
func (r *Reader) readSentinels() ([]int64, bool, int64, error) {
	offsets := make([]int64, r.n)

	if ok, err := r.tryReadSentinels(r.initialPos, r.legacy, offsets); err != nil {
		return nil, false, 0, err
	} else if ok {
		return offsets, r.legacy, r.initialPos, nil
	}
	if !r.legacy {
		if ok, err := r.tryReadSentinels(r.initialPos, true, offsets); err == nil && ok {
			return offsets, true, r.initialPos, nil
		}
	}

	if zero, err := r.leadingBytesAllZero(r.initialPos, wire.LegacyHeaderSize); err == nil && zero {
		skipped := r.initialPos + wire.LegacyHeaderSize
		if ok, err := r.tryReadSentinels(skipped, r.legacy, offsets); err == nil && ok {
			return offsets, r.legacy, skipped, nil
		}
		if ok, err := r.tryReadSentinels(skipped, true, offsets); err == nil && ok {
			return offsets, true, skipped, nil
		}
	}

	return nil, false, 0, &FormatError{Reason: "stream head sentinel mismatch"}
}

// leadingBytesAllZero reports whether the n bytes starting at pos are all
// zero, without treating a short read as an error (an archive too small to
// hold the probed window simply cannot match the workaround).
func (r *Reader) leadingBytesAllZero(pos int64, n int64) (bool, error) {
	buf := make([]byte, n)
	if err := readAtFull(r.f, buf, pos); err != nil {
		return false, nil
	}
	for _, b := range buf {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}

func (r *Reader) tryReadSentinels(start int64, legacy bool, offsets []int64) (bool, error) {
	hdrSize := wire.Size(legacy)
	cur := start
	for s := 0; s < r.n; s++ {
		buf := make([]byte, hdrSize)
		if err := readAtFull(r.f, buf, cur); err != nil {
			return false, nil
		}
		var hdr Record
		var err error
		if legacy {
			err = hdr.UnmarshalLegacy(buf)
		} else {
			err = hdr.UnmarshalBinary(buf)
		}
		// A sentinel's next field is patched once its stream's first record
		// is written, so only c_type, c_len and u_len are checked here.
		if err != nil || hdr.CType != TagNone || hdr.CLen != 0 || hdr.ULen != 0 {
			return false, nil
		}
		offsets[s] = hdr.Next // current format only; 0 also means "empty"
		cur += hdrSize
	}
	return true, nil
}

// ReadStream copies up to len(dst) bytes from stream s's decoded data into
// dst, prefetching and decoding further records as needed. It returns 0,
// nil once the stream is exhausted.
func (r *Reader) ReadStream(s int, dst []byte) (int, error) {
	if s < 0 || s >= r.n {
		return 0, &ConfigError{Reason: fmt.Sprintf("stream index %d out of range [0,%d)", s, r.n)}
	}
	st := &r.streams[s]
	total := 0

	for total < len(dst) {
		if st.curOff < len(st.cur) {
			n := copy(dst[total:], st.cur[st.curOff:])
			st.curOff += n
			total += n
			continue
		}
		if st.done {
			break
		}
		if err := r.fillBuffer(s); err != nil {
			return total, err
		}
		if st.inFlight == 0 {
			st.done = true
			break
		}
		data, _, ok, err := st.asm.Next()
		st.inFlight--
		if err != nil {
			return total, err
		}
		if !ok {
			st.done = true
			break
		}
		if len(st.pending) > 0 {
			st.consumedEnd = st.pending[0]
			st.pending = st.pending[1:]
		}
		st.cur, st.curOff = data, 0
	}
	return total, nil
}

// fillBuffer keeps up to prefetchDepth decode jobs outstanding for stream s.
func (r *Reader) fillBuffer(s int) error {
	st := &r.streams[s]
	for st.inFlight < prefetchDepth && !st.eos {
		ok, err := r.submitNext(s)
		if err != nil {
			return err
		}
		if !ok {
			st.eos = true
			break
		}
		st.inFlight++
	}
	return nil
}

// submitNext reads the next record's header synchronously (cheap, fixed
// size) to learn its length and on-disk successor, then dispatches the
// potentially large payload read, decrypt, and decompress to the shared
// pool so the caller's goroutine stays responsive.
func (r *Reader) submitNext(s int) (bool, error) {
	st := &r.streams[s]
	if st.nextOffset == 0 {
		return false, nil
	}
	pos := st.nextOffset
	hdrSize := wire.Size(r.legacy)

	hdrBuf := make([]byte, hdrSize)
	if err := readAtFull(r.f, hdrBuf, pos); err != nil {
		if r.legacy {
			// The legacy layout has no on-disk marker for the last record in
			// a chain: running out of bytes to read a header from at the
			// expected position is itself the end-of-stream signal.
			st.nextOffset = 0
			st.asm.CloseAfter(st.submitted)
			return false, nil
		}
		return false, err
	}
	var hdr Record
	var err error
	if r.legacy {
		err = hdr.UnmarshalLegacy(hdrBuf)
	} else {
		err = hdr.UnmarshalBinary(hdrBuf)
	}
	if err != nil {
		return false, &FormatError{Reason: err.Error()}
	}
	if !hdr.CType.Valid() {
		return false, &FormatError{Reason: fmt.Sprintf("unknown c_type %d at offset %d", hdr.CType, pos)}
	}

	st.submitted++
	seq := st.submitted
	payloadOff := pos + hdrSize
	clen := hdr.CLen
	endOff := payloadOff + clen

	if r.legacy {
		// The legacy layout carries no next field: the following record, if
		// any, starts immediately after this one's payload. Whether there
		// is one is discovered the next time submitNext tries to read a
		// header from this position.
		st.nextOffset = endOff
	} else {
		st.nextOffset = hdr.Next
	}
	r.cfg.trace("submit: stream=%d seq=%d offset=%d c_type=%d c_len=%d u_len=%d next=%d", s, seq, pos, hdr.CType, clen, hdr.ULen, st.nextOffset)

	cfg, reg := r.cfg, r.reg
	passHash, arcHash := r.passHash, r.arcHash
	cType := hdr.CType
	uLen := hdr.ULen
	f := r.f

	job := func() ([]byte, error) {
		payload := make([]byte, clen)
		if err := readAtFull(f, payload, payloadOff); err != nil {
			return nil, err
		}
		if len(cfg.KeyMaterial) > 0 {
			dec, err := decryptBlock(cfg.HashFunc, passHash, arcHash, seq, payload)
			if err != nil {
				return nil, &CodecError{Tag: uint8(cType), Err: err}
			}
			payload = dec
		}
		out, err := reg.Decompress(cType, payload, uLen)
		if err != nil {
			return nil, &CodecError{Tag: uint8(cType), Err: err}
		}
		return out, nil
	}

	st.pending = append(st.pending, endOff)
	if err := r.pool.Submit(r.ctx, st.asm, seq, job); err != nil {
		return false, err
	}
	if st.nextOffset == 0 {
		st.asm.CloseAfter(seq)
	}
	return true, nil
}

// CloseStreamIn tears down the reader's worker pool and, if the underlying
// descriptor supports it, seeks it to just past the highest offset any
// stream's completed ReadStream calls actually consumed — not the highest
// offset prefetched, which may run ahead of what the caller has seen.
func (r *Reader) CloseStreamIn() error {
	r.pool.Close()

	maxEnd := r.afterSentinels
	for s := range r.streams {
		if r.streams[s].consumedEnd > maxEnd {
			maxEnd = r.streams[s].consumedEnd
		}
	}

	r.cfg.trace("close_stream_in: seek to %d", maxEnd)
	if sk, ok := r.f.(io.Seeker); ok {
		if _, err := sk.Seek(maxEnd, io.SeekStart); err != nil {
			return &IOError{Op: "seek", Offset: maxEnd, Err: err}
		}
	}
	return nil
}
