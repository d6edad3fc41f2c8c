package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	for _, h := range []Header{
		{CType: None, CLen: 0, ULen: 0, Next: 0},
		{CType: LZFast, CLen: 123, ULen: 4096, Next: 4096 + HeaderSize},
		{CType: Mixing, CLen: 1 << 40, ULen: 1 << 41, Next: 1 << 42},
	} {
		buf, err := h.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}
		if len(buf) != HeaderSize {
			t.Fatalf("got %d bytes, want %d", len(buf), HeaderSize)
		}
		var got Header
		if err := got.UnmarshalBinary(buf); err != nil {
			t.Fatalf("UnmarshalBinary: %v", err)
		}
		if got != h {
			t.Errorf("got %+v, want %+v", got, h)
		}
	}
}

func TestHeaderLegacyRoundTrip(t *testing.T) {
	h := Header{CType: Dict, CLen: 17, ULen: 4096}
	buf := h.MarshalLegacy()
	if len(buf) != LegacyHeaderSize {
		t.Fatalf("got %d bytes, want %d", len(buf), LegacyHeaderSize)
	}
	var got Header
	if err := got.UnmarshalLegacy(buf); err != nil {
		t.Fatalf("UnmarshalLegacy: %v", err)
	}
	if got.CType != h.CType || got.CLen != h.CLen || got.ULen != h.ULen || got.Next != 0 {
		t.Errorf("got %+v, want CType=%v CLen=%v ULen=%v Next=0", got, h.CType, h.CLen, h.ULen)
	}
}

func TestIsSentinel(t *testing.T) {
	if !(Header{}).IsSentinel() {
		t.Error("zero-value header should be a sentinel")
	}
	if (Header{CType: LZFast}).IsSentinel() {
		t.Error("non-zero c_type should not be a sentinel")
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 4096, 1 << 40} {
		if got := Offset(PutOffset(v)); got != v {
			t.Errorf("PutOffset/Offset(%d) = %d", v, got)
		}
	}
}

func TestTagValid(t *testing.T) {
	for tag := None; tag <= Mixing; tag++ {
		if !tag.Valid() {
			t.Errorf("Tag(%d).Valid() = false, want true", tag)
		}
	}
	if Tag(Mixing + 1).Valid() {
		t.Error("Tag(Mixing+1).Valid() = true, want false")
	}
}
