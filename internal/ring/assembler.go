// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ring

import (
	"container/heap"
	"context"
	"sync"
)

// Pool is the reader engine's shared decode worker pool. Unlike the
// reference implementation's per-stream decompressor, one Pool backs every
// open stream: any idle worker can service any stream's decode job, while
// each stream's Assembler independently restores submission order for
// delivery. This is a direct generalization of the reference
// implementation's own worker/assemble split (see parallel.go in the
// reference sources) from a single stream to N.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	asm    *Assembler
	seq    uint64
	decode func() ([]byte, error)
}

// NewPool starts a pool of workers goroutines servicing decode jobs.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job, workers*2)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case j, ok := <-p.jobs:
					if !ok {
						return
					}
					data, err := j.decode()
					j.asm.submit(j.seq, data, err)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return p
}

// Submit enqueues a decode job for seq, whose result is delivered to asm in
// order relative to asm's other jobs, not necessarily in submission order
// relative to the pool as a whole.
func (p *Pool) Submit(ctx context.Context, asm *Assembler, seq uint64, decode func() ([]byte, error)) error {
	select {
	case p.jobs <- job{asm: asm, seq: seq, decode: decode}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for all in-flight jobs to finish and stops the workers. The
// caller must not Submit after calling Close.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Assembler restores a single logical stream's submission order from a
// shared worker pool's out-of-order completions, generalizing the reference
// implementation's Decompressor.assemble/blockHeap pair (parallel.go in the
// reference sources) to operate alongside N-1 other streams on one pool.
type Assembler struct {
	ctx context.Context

	in      chan *jobResult
	lastSeq chan uint64
	out     chan item
	errCh   chan error
}

type jobResult struct {
	seq  uint64
	data []byte
	err  error
}

// item is one in-order decoded block delivered to the stream's consumer.
type item struct {
	Seq  uint64
	Data []byte
}

type resultHeap []*jobResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(*jobResult))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// NewAssembler starts an assembler for one stream. capacity bounds how many
// out-of-order results may be buffered before the pool blocks submitting to
// it, mirroring the reference implementation's bounded doneCh.
func NewAssembler(ctx context.Context, capacity int) *Assembler {
	a := &Assembler{
		ctx:     ctx,
		in:      make(chan *jobResult, capacity),
		lastSeq: make(chan uint64, 1),
		out:     make(chan item, capacity),
		errCh:   make(chan error, 1),
	}
	go a.run()
	return a
}

// submit is called by the owning Pool when seq's decode job completes.
func (a *Assembler) submit(seq uint64, data []byte, err error) {
	select {
	case a.in <- &jobResult{seq: seq, data: data, err: err}:
	case <-a.ctx.Done():
	}
}

// CloseAfter tells the assembler that seq is the last sequence number it
// will ever submit (the chain walk hit next == 0), so it can signal end of
// stream once everything up to seq has drained in order.
func (a *Assembler) CloseAfter(seq uint64) {
	select {
	case a.lastSeq <- seq:
	case <-a.ctx.Done():
	}
}

// Next blocks until the next in-order block is available, the stream ends
// (ok == false, err == nil), or a decode error terminates the stream. seq is
// the submitted sequence number the returned data corresponds to.
func (a *Assembler) Next() (data []byte, seq uint64, ok bool, err error) {
	it, open := <-a.out
	if !open {
		select {
		case err = <-a.errCh:
		default:
		}
		return nil, 0, false, err
	}
	return it.Data, it.Seq, true, nil
}

func (a *Assembler) run() {
	h := &resultHeap{}
	heap.Init(h)
	expect := uint64(1)
	last := uint64(0)
	haveLast := false

	defer close(a.out)

	for {
		select {
		case r, open := <-a.in:
			if !open {
				return
			}
			heap.Push(h, r)
		case n := <-a.lastSeq:
			last, haveLast = n, true
		case <-a.ctx.Done():
			a.errCh <- a.ctx.Err()
			return
		}

		for h.Len() > 0 {
			top := (*h)[0]
			if top.seq != expect {
				break
			}
			heap.Pop(h)
			if top.err != nil {
				a.errCh <- top.err
				return
			}
			select {
			case a.out <- item{Seq: top.seq, Data: top.data}:
			case <-a.ctx.Done():
				a.errCh <- a.ctx.Err()
				return
			}
			expect++
		}

		if haveLast && expect > last {
			return
		}
	}
}
