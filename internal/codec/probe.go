// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

// probeStartWindow is the initial prefix length tested by probe, before any
// doubling.
const probeStartWindow = 4096

// probe runs the bounded LZ-fast compressibility pre-test: starting from a
// small prefix of src, it compresses the prefix and doubles the window
// (capped at len(src)) until the compressed size beats threshold times the
// window size, or the whole block has been tried without success. If
// threshold is greater than 1.0 the probe is skipped and src is always
// treated as compressible, without running the codec.
func probe(lz Compressor, src []byte, threshold float64, level int) (bool, error) {
	if threshold > 1.0 {
		return true, nil
	}
	if len(src) == 0 {
		return true, nil
	}

	window := probeStartWindow
	if window > len(src) {
		window = len(src)
	}

	for {
		out, err := lz.Compress(src[:window], level)
		if err != nil {
			return false, err
		}
		if float64(len(out)) <= threshold*float64(window) {
			return true, nil
		}
		if window >= len(src) {
			return false, nil
		}
		window *= 2
		if window > len(src) {
			window = len(src)
		}
	}
}
