package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cosnicolaou/rzstream/internal/wire"
)

// fakeCodec is a round-trippable stand-in for a real back end, letting the
// registry's dispatch logic (probe gate, fallback, store-raw demotion) be
// tested independently of any third-party codec library.
type fakeCodec struct {
	tag     wire.Tag
	failEnc bool
	failDec bool
	shrink  bool // whether Compress actually reduces size
}

func (f *fakeCodec) Tag() wire.Tag { return f.tag }

func (f *fakeCodec) Compress(src []byte, level int) ([]byte, error) {
	if f.failEnc {
		return nil, errors.New("fake: compress failed")
	}
	if f.shrink {
		return src[:len(src)/2], nil
	}
	return append([]byte(nil), src...), nil
}

func (f *fakeCodec) Decompress(src []byte, uLen int64) ([]byte, error) {
	if f.failDec {
		return nil, errors.New("fake: decompress failed")
	}
	out := make([]byte, uLen)
	copy(out, src)
	return out, nil
}

func newTestRegistry(threshold float64, codecs ...*fakeCodec) *Registry {
	r := &Registry{codecs: make(map[wire.Tag]Codec, len(codecs)), threshold: threshold}
	for _, c := range codecs {
		r.codecs[c.tag] = c
	}
	return r
}

func TestRegistryCompressShrinks(t *testing.T) {
	r := newTestRegistry(1.5, // threshold > 1.0 disables the probe
		&fakeCodec{tag: wire.LZFast, shrink: true})
	src := bytes.Repeat([]byte{'a'}, 256)
	tag, out, err := r.Compress(wire.LZFast, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if tag != wire.LZFast {
		t.Errorf("got tag %v, want LZFast", tag)
	}
	if len(out) >= len(src) {
		t.Errorf("expected shrink, got %d bytes from %d", len(out), len(src))
	}
}

func TestRegistryStoreRawOnNoShrink(t *testing.T) {
	r := newTestRegistry(1.5, &fakeCodec{tag: wire.LZFast, shrink: false})
	src := bytes.Repeat([]byte{'a'}, 256)
	tag, out, err := r.Compress(wire.LZFast, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if tag != wire.None {
		t.Errorf("got tag %v, want None (store-raw)", tag)
	}
	if !bytes.Equal(out, src) {
		t.Error("store-raw fallback did not return the original bytes")
	}
}

func TestRegistryStoreRawOnEncodeFailure(t *testing.T) {
	r := newTestRegistry(1.5, &fakeCodec{tag: wire.Range, failEnc: true})
	src := bytes.Repeat([]byte{'a'}, 256)
	tag, out, err := r.Compress(wire.Range, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v, want nil (encode failures demote to store-raw)", err)
	}
	if tag != wire.None || !bytes.Equal(out, src) {
		t.Errorf("got (%v, %v), want (None, src)", tag, out)
	}
}

func TestRegistryDictFallsBackToEntropy(t *testing.T) {
	r := newTestRegistry(1.5,
		&fakeCodec{tag: wire.Dict, failEnc: true},
		&fakeCodec{tag: wire.Entropy, shrink: true})
	src := bytes.Repeat([]byte{'a'}, 256)
	tag, out, err := r.Compress(wire.Dict, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if tag != wire.Entropy {
		t.Errorf("got tag %v, want Entropy (fallback)", tag)
	}
	if len(out) >= len(src) {
		t.Error("expected the entropy fallback's shrunk output")
	}
}

func TestRegistryProbeGatesNonLZFastTags(t *testing.T) {
	r := newTestRegistry(0.95,
		&fakeCodec{tag: wire.LZFast, shrink: false}, // incompressible probe result
		&fakeCodec{tag: wire.Entropy, shrink: true})
	src := bytes.Repeat([]byte{'a'}, 1<<20)
	tag, out, err := r.Compress(wire.Entropy, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if tag != wire.None {
		t.Errorf("got tag %v, want None (probe rejected before ENTROPY ran)", tag)
	}
	if !bytes.Equal(out, src) {
		t.Error("expected store-raw output equal to src")
	}
}

func TestRegistryCompressNoneIsIdentity(t *testing.T) {
	r := newTestRegistry(0.95)
	src := []byte("passthrough")
	tag, out, err := r.Compress(wire.None, src, 6)
	if err != nil || tag != wire.None || !bytes.Equal(out, src) {
		t.Fatalf("got (%v, %v, %v), want (None, src, nil)", tag, out, err)
	}
}

func TestRegistryDecompressRoundTrip(t *testing.T) {
	r := newTestRegistry(1.5, &fakeCodec{tag: wire.LZFast, shrink: true})
	src := bytes.Repeat([]byte{'x'}, 4096)
	tag, compressed, err := r.Compress(wire.LZFast, src, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := r.Decompress(tag, compressed, int64(len(src)))
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out[:len(compressed)], compressed) {
		t.Error("fakeCodec.Decompress did not echo its input prefix as expected")
	}
	if int64(len(out)) != int64(len(src)) {
		t.Errorf("got length %d, want %d", len(out), len(src))
	}
}

func TestRegistryDecompressLengthMismatch(t *testing.T) {
	r := newTestRegistry(1.5)
	_, err := r.Decompress(wire.None, []byte("short"), 100)
	var lm *LengthMismatchError
	if !errors.As(err, &lm) {
		t.Fatalf("got %v, want *LengthMismatchError", err)
	}
}

func TestRegistryUnknownTag(t *testing.T) {
	r := newTestRegistry(1.5)
	_, _, err := r.Compress(wire.Mixing, []byte("x"), 6)
	var ut *UnknownTagError
	if !errors.As(err, &ut) {
		t.Fatalf("got %v, want *UnknownTagError", err)
	}
}
