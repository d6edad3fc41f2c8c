// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import "io"

// maxChunk is the largest single read/write issued against the archive
// descriptor in one call, sidestepping 32-bit size-argument defects on
// historical hosts. A short return is retried until the full length is
// satisfied or an error is returned — no silent truncation.
const maxChunk = 1 << 30 // 1 GiB

// writeAtFull writes all of buf to w starting at off.
func writeAtFull(w io.WriterAt, buf []byte, off int64) error {
	for len(buf) > 0 {
		chunk := buf
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		n, err := w.WriteAt(chunk, off)
		if n > 0 {
			buf = buf[n:]
			off += int64(n)
		}
		if len(buf) == 0 {
			return nil
		}
		if err != nil {
			return &IOError{Op: "write", Offset: off, Err: err}
		}
		if n == 0 {
			return &IOError{Op: "write", Offset: off, Err: io.ErrShortWrite}
		}
	}
	return nil
}

// seekWriteFull seeks f to off and writes all of buf, retrying short writes.
// The writer engine uses this rather than WriteAt because all writes happen
// inside the write-turn critical section, where exactly one goroutine ever
// touches the descriptor at a time — matching the reference
// implementation's own "seek, then write" worker body.
func seekWriteFull(f io.WriteSeeker, buf []byte, off int64) error {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return &IOError{Op: "seek", Offset: off, Err: err}
	}
	for len(buf) > 0 {
		chunk := buf
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		n, err := f.Write(chunk)
		if n > 0 {
			buf = buf[n:]
		}
		if len(buf) == 0 {
			return nil
		}
		if err != nil {
			return &IOError{Op: "write", Offset: off, Err: err}
		}
		if n == 0 {
			return &IOError{Op: "write", Offset: off, Err: io.ErrShortWrite}
		}
	}
	return nil
}

// readAtFull reads len(buf) bytes from r starting at off.
func readAtFull(r io.ReaderAt, buf []byte, off int64) error {
	for len(buf) > 0 {
		chunk := buf
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		n, err := r.ReadAt(chunk, off)
		if n > 0 {
			buf = buf[n:]
			off += int64(n)
		}
		if len(buf) == 0 {
			return nil
		}
		if err != nil {
			return &IOError{Op: "read", Offset: off, Err: err}
		}
		if n == 0 {
			return &IOError{Op: "read", Offset: off, Err: io.ErrUnexpectedEOF}
		}
	}
	return nil
}
