// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package rzstream_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cosnicolaou/rzstream"
)

func tempArchive(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "archive-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// repeatingPattern produces highly compressible data.
func repeatingPattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 17)
	}
	return buf
}

// pseudoRandom produces data with no short repeating structure, simulating
// an incompressible payload, via a small xorshift generator so the test has
// no external randomness dependency.
func pseudoRandom(n int, seed uint32) []byte {
	buf := make([]byte, n)
	x := seed | 1
	for i := range buf {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		buf[i] = byte(x)
	}
	return buf
}

func readAllStream(t *testing.T, r *rzstream.Reader, s int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.ReadStream(s, buf)
		if err != nil {
			t.Fatalf("ReadStream(%d): %v", s, err)
		}
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestRoundTripSingleStream(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	payload := repeatingPattern(300 * 1024)

	w, err := rzstream.OpenStreamOut(ctx, f, 1, rzstream.WithBlockLimit(16<<10), rzstream.WithWorkers(3))
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if _, err := w.WriteStream(0, payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1, rzstream.WithBlockLimit(16<<10), rzstream.WithWorkers(3))
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	got := readAllStream(t, r, 0)
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestRoundTripEmptyStream(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)

	w, err := rzstream.OpenStreamOut(ctx, f, 1)
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1)
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	got := readAllStream(t, r, 0)
	if len(got) != 0 {
		t.Fatalf("expected 0 bytes from an empty stream, got %d", len(got))
	}
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
}

func TestRoundTripIncompressible(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	payload := pseudoRandom(200*1024, 0xC0FFEE)

	w, err := rzstream.OpenStreamOut(ctx, f, 1, rzstream.WithBlockLimit(32<<10))
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if _, err := w.WriteStream(0, payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1, rzstream.WithBlockLimit(32<<10))
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	got := readAllStream(t, r, 0)
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch for incompressible, store-raw-fallback payload")
	}
}

func TestRoundTripMultiStream(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)

	payloads := [][]byte{
		repeatingPattern(120 * 1024),
		{},
		pseudoRandom(64*1024, 1),
		repeatingPattern(5 * 1024),
	}

	opts := []rzstream.Option{rzstream.WithBlockLimit(8 << 10), rzstream.WithWorkers(4)}
	w, err := rzstream.OpenStreamOut(ctx, f, len(payloads), opts...)
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	for s, p := range payloads {
		if _, err := w.WriteStream(s, p); err != nil {
			t.Fatalf("WriteStream(%d): %v", s, err)
		}
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, len(payloads), opts...)
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	for s, want := range payloads {
		got := readAllStream(t, r, s)
		if !bytes.Equal(got, want) {
			t.Errorf("stream %d: round trip mismatch: got %d bytes, want %d", s, len(got), len(want))
		}
	}
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
}

func TestRoundTripLegacyHeader(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	payload := repeatingPattern(50 * 1024)

	w, err := rzstream.OpenStreamOut(ctx, f, 1, rzstream.WithLegacyHeader(true), rzstream.WithBlockLimit(8<<10))
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if _, err := w.WriteStream(0, payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1, rzstream.WithLegacyHeader(true), rzstream.WithBlockLimit(8<<10))
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	got := readAllStream(t, r, 0)
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("legacy-header round trip mismatch")
	}
}

func TestRoundTripEncrypted(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	payload := repeatingPattern(90 * 1024)
	key := []byte("a passphrase that is long enough")

	w, err := rzstream.OpenStreamOut(ctx, f, 1, rzstream.WithKeyMaterial(key), rzstream.WithBlockLimit(16<<10))
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if _, err := w.WriteStream(0, payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1, rzstream.WithKeyMaterial(key), rzstream.WithBlockLimit(16<<10))
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	got := readAllStream(t, r, 0)
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("encrypted round trip mismatch")
	}
}

func TestOpenStreamOutRejectsLegacyMultiStream(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	_, err := rzstream.OpenStreamOut(ctx, f, 2, rzstream.WithLegacyHeader(true))
	var cfgErr *rzstream.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %v (%T), want *rzstream.ConfigError", err, err)
	}
}

func TestCloseStreamInSeeksPastConsumedData(t *testing.T) {
	ctx := context.Background()
	f := tempArchive(t)
	payload := repeatingPattern(40 * 1024)
	trailer := []byte("trailing sentinel bytes")

	w, err := rzstream.OpenStreamOut(ctx, f, 1, rzstream.WithBlockLimit(8<<10))
	if err != nil {
		t.Fatalf("OpenStreamOut: %v", err)
	}
	if _, err := w.WriteStream(0, payload); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	if err := w.CloseStreamOut(); err != nil {
		t.Fatalf("CloseStreamOut: %v", err)
	}
	if _, err := f.Write(trailer); err != nil {
		t.Fatalf("write trailer: %v", err)
	}

	r, err := rzstream.OpenStreamIn(ctx, f, 0, 1, rzstream.WithBlockLimit(8<<10))
	if err != nil {
		t.Fatalf("OpenStreamIn: %v", err)
	}
	_ = readAllStream(t, r, 0)
	if err := r.CloseStreamIn(); err != nil {
		t.Fatalf("CloseStreamIn: %v", err)
	}

	got := make([]byte, len(trailer))
	if _, err := f.Read(got); err != nil {
		t.Fatalf("read trailer after close: %v", err)
	}
	if !bytes.Equal(got, trailer) {
		t.Errorf("descriptor was not left positioned at the trailer: got %q, want %q", got, trailer)
	}
}
