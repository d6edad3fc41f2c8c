// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package ring holds the writer engine's write-turn token ring and the
// reader engine's shared worker pool plus per-stream reassembly — the
// channel-based re-architecture of the reference implementation's counting
// semaphores and cyclic wait_on ring.
package ring

import "context"

// TokenRing is an explicit write-turn token: one capacity-1 channel per
// ring position, handed off in a fixed rotation. Holding position i's token
// is the right to patch the stream's last_head, advance cur_pos, and append
// position i's record; releasing it passes the turn to position i+1 mod n.
// Position 0 starts pre-posted, mirroring the reference implementation's
// single pre-posted starter signal that lets the first worker proceed
// without waiting on a predecessor.
type TokenRing struct {
	turn []chan struct{}
}

// NewTokenRing builds a ring of n write-turn positions.
func NewTokenRing(n int) *TokenRing {
	tr := &TokenRing{turn: make([]chan struct{}, n)}
	for i := range tr.turn {
		tr.turn[i] = make(chan struct{}, 1)
	}
	tr.turn[0] <- struct{}{}
	return tr
}

// Acquire blocks until position i holds the write turn, or ctx is done.
func (tr *TokenRing) Acquire(ctx context.Context, i int) error {
	select {
	case <-tr.turn[i]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release passes the write turn from position i to its successor.
func (tr *TokenRing) Release(i int) {
	tr.turn[(i+1)%len(tr.turn)] <- struct{}{}
}

// Len returns the number of ring positions.
func (tr *TokenRing) Len() int { return len(tr.turn) }

// WriterRing pairs the write-turn token ring with a free/busy ownership
// channel per position, so a flush can block on a position becoming free
// for new work independently of write ordering.
type WriterRing struct {
	tokens *TokenRing
	free   []chan struct{}
}

// NewWriterRing builds a writer ring of n positions, all initially free.
func NewWriterRing(n int) *WriterRing {
	wr := &WriterRing{tokens: NewTokenRing(n), free: make([]chan struct{}, n)}
	for i := range wr.free {
		wr.free[i] = make(chan struct{}, 1)
		wr.free[i] <- struct{}{}
	}
	return wr
}

// Size returns the number of positions in the ring.
func (wr *WriterRing) Size() int { return len(wr.free) }

// AcquireSlot blocks until ring position i is free for new work.
func (wr *WriterRing) AcquireSlot(ctx context.Context, i int) error {
	select {
	case <-wr.free[i]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseSlot marks ring position i free for reuse. Callers release a slot
// only after they have also released its write turn.
func (wr *WriterRing) ReleaseSlot(i int) {
	wr.free[i] <- struct{}{}
}

// AcquireTurn blocks until position i holds the write turn.
func (wr *WriterRing) AcquireTurn(ctx context.Context, i int) error {
	return wr.tokens.Acquire(ctx, i)
}

// ReleaseTurn passes the write turn from position i to its successor.
func (wr *WriterRing) ReleaseTurn(i int) {
	wr.tokens.Release(i)
}
