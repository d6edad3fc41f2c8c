// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream

import (
	"context"
	"io"

	"github.com/schollz/progressbar/v2"
)

// WatchProgress drives a terminal progress bar from ch, a channel supplied
// to a Writer via WithProgress, carrying the reference implementation's own
// cmd/pbzip2 progressBar helper over from decompression progress to
// compression progress (a Reader sends no Progress events). It returns once ctx is done, ch is
// closed, or the bytes reported via Progress.Size reach totalBytes.
func WatchProgress(ctx context.Context, w io.Writer, ch <-chan Progress, totalBytes int64) {
	bar := progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetBytes64(totalBytes),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()

	var seen int64
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			bar.Add(p.Size)
			seen += int64(p.Size)
			if totalBytes > 0 && seen >= totalBytes {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
