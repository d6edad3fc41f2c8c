// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	cloudengerrors "cloudeng.io/errors"

	"github.com/cosnicolaou/rzstream/internal/codec"
	"github.com/cosnicolaou/rzstream/internal/ring"
	"github.com/cosnicolaou/rzstream/internal/wire"
)

// writerStream is a single stream's writer-side state: the buffer
// currently being filled by the producer, the offset of the next field to
// patch in its last-written record, and the stream's monotonic record
// sequence number (also used to derive each block's encryption salt).
type writerStream struct {
	buf      []byte
	lastHead int64
	seq      uint64
}

// Writer is the writer engine (component 4.3): it accepts bytes per
// stream, cuts them into block-sized chunks, dispatches them to a ring of
// workers, and maintains per-stream write order in the archive.
//
// Unlike the reference implementation, every piece of mutable ring state
// lives on the Writer value itself rather than in process-wide globals, so
// multiple archives may be written concurrently in one process.
type Writer struct {
	ctx context.Context
	cfg Config

	f          io.WriteSeeker
	initialPos int64
	n          int
	bufsize    int64
	legacy     bool

	curPos  int64 // owned by whichever worker currently holds the write turn
	ringPos int   // next ring position a flush will dispatch to

	streams []writerStream
	ringer  *ring.WriterRing
	reg     *codec.Registry

	passHash []byte
	arcHash  []byte

	wg    sync.WaitGroup
	errCh chan error
}

// OpenStreamOut sizes the block, allocates per-stream state, writes N
// sentinel records, and arms the worker ring. f's current position becomes
// the archive's starting offset.
func OpenStreamOut(ctx context.Context, f io.WriteSeeker, n int, opts ...Option) (*Writer, error) {
	if n <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("stream count must be positive, got %d", n)}
	}
	cfg := newConfig(opts)
	if !cfg.Backend.Valid() {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown backend tag %v", cfg.Backend)}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(-1)
	}
	if cfg.LegacyHeader && n != 1 {
		return nil, &ConfigError{Reason: "legacy header format supports only a single stream (no on-disk next field to multiplex with)"}
	}

	bufsize, err := sizeBlocks(cfg.BlockLimit, n, workers)
	if err != nil {
		return nil, err
	}

	initialPos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, &IOError{Op: "seek", Err: err}
	}

	w := &Writer{
		ctx:        ctx,
		cfg:        cfg,
		f:          f,
		initialPos: initialPos,
		n:          n,
		bufsize:    bufsize,
		legacy:     cfg.LegacyHeader,
		curPos:     0,
		streams:    make([]writerStream, n),
		ringer:     ring.NewWriterRing(workers),
		reg:        codec.NewRegistry(cfg.Threshold),
		errCh:      make(chan error, workers+n),
	}
	if len(cfg.KeyMaterial) > 0 {
		w.passHash = passphraseHash(cfg.KeyMaterial)
		w.arcHash = archiveHash(n, initialPos)
	}

	for s := 0; s < n; s++ {
		pos := w.initialPos + w.curPos
		hdr := Record{CType: TagNone, CLen: 0, ULen: 0, Next: 0}
		var hdrBytes []byte
		if w.legacy {
			hdrBytes = hdr.MarshalLegacy()
		} else {
			hdrBytes, _ = hdr.MarshalBinary()
		}
		if err := seekWriteFull(w.f, hdrBytes, pos); err != nil {
			return nil, err
		}
		w.curPos += int64(len(hdrBytes))
		if !w.legacy {
			w.streams[s].lastHead = pos + wire.NextFieldOffset
		}
	}

	w.cfg.trace("open_stream_out: n=%d legacy=%v bufsize=%d backend=%v level=%d workers=%d", n, w.legacy, bufsize, cfg.Backend, cfg.Level, workers)

	return w, nil
}

// WriteStream appends p to stream s's buffer, flushing to the worker ring
// each time the buffer reaches bufsize.
func (w *Writer) WriteStream(s int, p []byte) (int, error) {
	if s < 0 || s >= w.n {
		return 0, &ConfigError{Reason: fmt.Sprintf("stream index %d out of range [0,%d)", s, w.n)}
	}
	st := &w.streams[s]
	total := 0
	for len(p) > 0 {
		space := int(w.bufsize) - len(st.buf)
		if space <= 0 {
			if err := w.flush(s); err != nil {
				return total, err
			}
			space = int(w.bufsize)
		}
		chunk := p
		if len(chunk) > space {
			chunk = chunk[:space]
		}
		st.buf = append(st.buf, chunk...)
		p = p[len(chunk):]
		total += len(chunk)
		if len(st.buf) >= int(w.bufsize) {
			if err := w.flush(s); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// flush picks the next worker slot in round-robin, waits on that slot
// becoming free, transfers ownership of the stream's buffer to a worker
// goroutine, and resets the producer-facing buffer.
func (w *Writer) flush(s int) error {
	st := &w.streams[s]
	if len(st.buf) == 0 {
		return nil
	}
	slot := w.ringPos
	w.ringPos = (w.ringPos + 1) % w.ringer.Size()

	if err := w.ringer.AcquireSlot(w.ctx, slot); err != nil {
		return err
	}

	buf := st.buf
	st.buf = nil
	st.seq++
	seq := st.seq

	w.wg.Add(1)
	go w.worker(slot, s, seq, buf)
	return nil
}

// worker implements the per-block worker body: compress (or demote to
// store-raw), optionally encrypt, wait for the write turn, patch the
// predecessor's next field, append the record, advance cur_pos, fsync, and
// pass the turn on.
func (w *Writer) worker(slot, s int, seq uint64, buf []byte) {
	defer w.wg.Done()
	defer w.ringer.ReleaseSlot(slot)

	tag, payload, cerr := w.reg.Compress(w.cfg.Backend, buf, w.cfg.Level)
	if cerr != nil {
		w.cfg.trace("stream=%d block=%d compress failed, storing raw: %v", s, seq, cerr)
		tag, payload = TagNone, buf
	}
	w.cfg.trace("stream=%d block=%d c_type=%d size=%d compressed=%d", s, seq, tag, len(buf), len(payload))

	if len(w.cfg.KeyMaterial) > 0 {
		enc, eerr := encryptBlock(w.cfg.HashFunc, w.passHash, w.arcHash, seq, payload)
		if eerr != nil {
			cerr = &CodecError{Tag: uint8(tag), Err: eerr}
		} else {
			payload = enc
		}
	}

	if err := w.ringer.AcquireTurn(w.ctx, slot); err != nil {
		w.reportErr(err)
		w.ringer.ReleaseTurn(slot)
		return
	}

	if werr := w.writeRecord(s, tag, payload, int64(len(buf))); werr != nil {
		cerr = werr
	}

	if cerr != nil {
		w.reportErr(cerr)
	} else if w.cfg.ProgressCh != nil {
		select {
		case w.cfg.ProgressCh <- Progress{Stream: s, Block: seq, Compressed: len(payload), Size: len(buf)}:
		case <-w.ctx.Done():
		}
	}

	w.ringer.ReleaseTurn(slot)
}

// writeRecord must only be called by the current write-turn holder: it
// patches the stream's predecessor next field (current format only),
// writes the new record header and payload at cur_pos, advances cur_pos,
// and fsyncs.
func (w *Writer) writeRecord(s int, tag CodecTag, payload []byte, uLen int64) error {
	st := &w.streams[s]
	pos := w.initialPos + w.curPos

	if !w.legacy {
		if err := seekWriteFull(w.f, wire.PutOffset(pos), st.lastHead); err != nil {
			return err
		}
		st.lastHead = pos + wire.NextFieldOffset
	}

	hdr := Record{CType: tag, CLen: int64(len(payload)), ULen: uLen, Next: 0}
	var hdrBytes []byte
	if w.legacy {
		hdrBytes = hdr.MarshalLegacy()
	} else {
		var err error
		hdrBytes, err = hdr.MarshalBinary()
		if err != nil {
			return &FormatError{Reason: err.Error()}
		}
	}

	if err := seekWriteFull(w.f, hdrBytes, pos); err != nil {
		return err
	}
	if err := seekWriteFull(w.f, payload, pos+int64(len(hdrBytes))); err != nil {
		return err
	}
	w.curPos = pos - w.initialPos + int64(len(hdrBytes)) + int64(len(payload))

	if s, ok := w.f.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return &IOError{Op: "fsync", Offset: pos, Err: err}
		}
	}
	return nil
}

func (w *Writer) reportErr(err error) {
	select {
	case w.errCh <- err:
	default:
	}
}

// CloseStreamOut flushes any partial buffer for each stream, awaits all
// workers, and returns an aggregated error if any worker failed. Worker
// failures are routed here via an internal error channel rather than
// terminating the process.
func (w *Writer) CloseStreamOut() error {
	var m cloudengerrors.M
	for s := 0; s < w.n; s++ {
		if err := w.flush(s); err != nil {
			m.Append(err)
		}
	}
	w.wg.Wait()
	close(w.errCh)
	for err := range w.errCh {
		m.Append(err)
	}
	err := m.Err()
	w.cfg.trace("close_stream_out: final cur_pos=%d err=%v", w.curPos, err)
	return err
}
