package compress

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressDecompress(t *testing.T) {
	data := bytes.Repeat([]byte(`{"foo":"bar","baz":123},`), 512)

	for _, level := range []Level{Fast, Default, Best} {
		compressed, err := Compress(data, level)
		if err != nil {
			t.Fatalf("Compress(%s): %v", level, err)
		}
		if len(compressed) >= len(data) {
			t.Fatalf("%s: expected compression, got %d >= %d", level, len(compressed), len(data))
		}

		decompressed, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress(%s): %v", level, err)
		}
		if !bytes.Equal(data, decompressed) {
			t.Fatalf("%s: data mismatch after round trip", level)
		}
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := Decompress([]byte("definitely not an lz4 frame")); !errors.Is(err, ErrDecompressionFailed) {
		t.Fatalf("expected ErrDecompressionFailed, got %v", err)
	}
}

func TestPack(t *testing.T) {
	small := []byte(`"hi"`)
	out, ok := Pack(small, Default)
	if ok || !bytes.Equal(out, small) {
		t.Fatalf("expected tiny input to stay uncompressed")
	}

	large := bytes.Repeat([]byte("a"), 4096)
	out, ok = Pack(large, Fast)
	if !ok || len(out) >= len(large) {
		t.Fatalf("expected repetitive input to compress")
	}

	out, ok = Pack(large, None)
	if ok || len(out) != len(large) {
		t.Fatalf("expected None to leave data alone")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": None, "off": None, "fast": Fast, "Default": Default, "best": Best}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("extreme"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func BenchmarkCompress(b *testing.B) {
	data := bytes.Repeat([]byte("laminate payload "), 4096)
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Compress(data, Fast)
	}
}
