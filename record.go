// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import "github.com/cosnicolaou/rzstream/internal/wire"

// Record is a single archive record's fixed-layout metadata: the
// compressor tag, stored and uncompressed payload lengths, and the
// absolute file offset of the next record for the same stream (0 if this
// is the stream's last record). Record is an alias of the wire package's
// own type so the header framing logic has exactly one implementation,
// shared by the codec registry, the writer engine, and the reader engine.
type Record = wire.Header

// HeaderSize and LegacyHeaderSize are the on-disk sizes of the current and
// legacy record headers, respectively.
const (
	HeaderSize       = wire.HeaderSize
	LegacyHeaderSize = wire.LegacyHeaderSize
)
