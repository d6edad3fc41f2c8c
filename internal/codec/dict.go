// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/woozymasta/lzo"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// dict binds wire.Dict to LZO1X, the dictionary-window coder.
type dict struct{}

func newDict() Codec { return dict{} }

func (dict) Tag() wire.Tag { return wire.Dict }

func (dict) Compress(src []byte, level int) ([]byte, error) {
	out, err := lzo.Compress1X999Level(src, level)
	if err != nil {
		return nil, fmt.Errorf("lzo: compress: %w", err)
	}
	return out, nil
}

func (dict) Decompress(src []byte, uLen int64) ([]byte, error) {
	out, err := lzo.Decompress(src, &lzo.DecompressOptions{OutLen: int(uLen)})
	if err != nil {
		return nil, fmt.Errorf("lzo: decompress: %w", err)
	}
	return out, nil
}
