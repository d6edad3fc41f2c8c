// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the fixed size, in bytes, of a current-format record
	// header: 1 (c_type) + 8 (c_len) + 8 (u_len) + 8 (next).
	HeaderSize = 25
	// LegacyHeaderSize is the fixed size of a legacy-format record header:
	// 1 (c_type) + 4 (c_len) + 4 (u_len) + 4 (u32 padding slot, unused by
	// this record but present in the historical layout). The legacy format
	// carries no next field on disk; linkage is tracked externally via
	// last_head.
	LegacyHeaderSize = 13
	// NextFieldOffset is the byte offset, within a current-format header,
	// of the next field. A predecessor record's next field is patched in
	// place by writing 8 little-endian bytes at cur_pos+NextFieldOffset.
	NextFieldOffset = 17
)

// Header is a single record's fixed-layout metadata, written immediately
// before its (possibly compressed, possibly encrypted) payload.
type Header struct {
	CType Tag
	CLen  int64
	ULen  int64
	Next  int64
}

// IsSentinel reports whether h is a stream-head sentinel: the all-zero
// record written N times at archive open.
func (h Header) IsSentinel() bool {
	return h.CType == None && h.CLen == 0 && h.ULen == 0 && h.Next == 0
}

// MarshalBinary encodes h in the current 25-byte little-endian layout.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.CType)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(h.CLen))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(h.ULen))
	binary.LittleEndian.PutUint64(buf[17:25], uint64(h.Next))
	return buf, nil
}

// UnmarshalBinary decodes a current-format 25-byte header from buf.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("wire: short header: got %d bytes, want %d", len(buf), HeaderSize)
	}
	h.CType = Tag(buf[0])
	h.CLen = int64(binary.LittleEndian.Uint64(buf[1:9]))
	h.ULen = int64(binary.LittleEndian.Uint64(buf[9:17]))
	h.Next = int64(binary.LittleEndian.Uint64(buf[17:25]))
	return nil
}

// MarshalLegacy encodes h in the legacy 13-byte layout (3x u32, no next
// field). The caller is responsible for tracking linkage via last_head.
func (h Header) MarshalLegacy() []byte {
	buf := make([]byte, LegacyHeaderSize)
	buf[0] = byte(h.CType)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.CLen))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(h.ULen))
	binary.LittleEndian.PutUint32(buf[9:13], 0)
	return buf
}

// UnmarshalLegacy decodes a legacy 13-byte header from buf. Next is always
// zero on return; the caller supplies linkage externally.
func (h *Header) UnmarshalLegacy(buf []byte) error {
	if len(buf) < LegacyHeaderSize {
		return fmt.Errorf("wire: short legacy header: got %d bytes, want %d", len(buf), LegacyHeaderSize)
	}
	h.CType = Tag(buf[0])
	h.CLen = int64(binary.LittleEndian.Uint32(buf[1:5]))
	h.ULen = int64(binary.LittleEndian.Uint32(buf[5:9]))
	h.Next = 0
	return nil
}

// PutOffset encodes v as 8 little-endian bytes, for patching a predecessor
// record's next field in place.
func PutOffset(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// Offset decodes 8 little-endian bytes previously produced by PutOffset.
func Offset(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// Size returns the on-disk header size for the given format.
func Size(legacy bool) int64 {
	if legacy {
		return LegacyHeaderSize
	}
	return HeaderSize
}
