// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import (
	"fmt"
	"math"
	"runtime/debug"
)

// is32Bit is true on platforms where uint is 32 bits wide.
const is32Bit = ^uint(0)>>63 == 0

// defaultBlockLimit is used when the caller supplies no BlockLimit.
const defaultBlockLimit = 64 << 20 // 64 MiB

// sizeBlocks implements the memory sizer (component 4.6): it clamps limit
// on 32-bit hosts, probes a speculative allocation of roughly limit*(n+1)
// bytes (or 3*n on 32-bit), backing off by a factor of 0.9 when the probe
// would exceed the configured soft memory limit, and finally derives
// bufsize = max(StreamBufsizeMin, min(limit, ceil(limit/workers))).
//
// Go's allocator cannot be "tried and rolled back" the way C's malloc/free
// can: a failing large allocation either succeeds from the OS (and is later
// GC-reclaimed) or crashes the runtime outright, so there is no recoverable
// failure return to retry against. The probe therefore performs one real
// speculative allocation per candidate limit and decides whether to shrink
// by comparing the candidate against runtime/debug.SetMemoryLimit(-1) — a
// read-only query of the configured soft memory limit — rather than by
// observing an allocation failure.
func sizeBlocks(limit int64, n, workers int) (int64, error) {
	if limit <= 0 {
		limit = defaultBlockLimit
	}
	if workers < 1 {
		workers = 1
	}

	if is32Bit {
		if cap32 := int64(2 << 30 / 6); limit > cap32 {
			limit = cap32
		}
		const lzmaCap = 300 << 20
		if limit > lzmaCap {
			limit = lzmaCap
		}
	}

	multiplier := int64(n + 1)
	if is32Bit {
		multiplier = int64(3 * n)
		if multiplier < 1 {
			multiplier = 1
		}
	}

	for {
		probe := limit * multiplier
		if probe <= 0 {
			probe = limit
		}
		buf := make([]byte, probe)
		soft := debug.SetMemoryLimit(-1)
		buf = nil

		if soft > 0 && soft != math.MaxInt64 && probe > soft {
			limit = int64(float64(limit) * 0.9)
			if limit < StreamBufsizeMin {
				return 0, &ResourceError{
					Op:  "open_stream_out",
					Err: fmt.Errorf("no block size fits within the %d-byte soft memory limit", soft),
				}
			}
			continue
		}
		break
	}

	w := int64(workers)
	bufsize := (limit + w - 1) / w
	if bufsize > limit {
		bufsize = limit
	}
	if bufsize < StreamBufsizeMin {
		bufsize = StreamBufsizeMin
	}
	return bufsize, nil
}
