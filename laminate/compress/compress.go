// Package compress shrinks serialized payloads with LZ4 before they enter the
// first cipher round.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("compress: compression failed")
	ErrDecompressionFailed = errors.New("compress: decompression failed")
	ErrUnknownLevel        = errors.New("compress: unknown level")
)

// MaxDecompressedSize bounds the output of Decompress.
const MaxDecompressedSize = 64 << 20

// Codec is the name recorded in envelopes whose payload went through Pack.
const Codec = "lz4"

// Level controls the speed/ratio tradeoff.
type Level int

const (
	None    Level = iota // Compression disabled
	Fast                 // Fastest, lower ratio
	Default              // Balanced
	Best                 // Best ratio, slower
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Fast:
		return "fast"
	case Default:
		return "default"
	case Best:
		return "best"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a configuration string to a Level. The empty string and
// "off" mean None.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "false":
		return None, nil
	case "fast":
		return Fast, nil
	case "default", "on", "true":
		return Default, nil
	case "best":
		return Best, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

var writerPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var readerPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// Compress compresses data using the LZ4 frame format.
func Compress(data []byte, level Level) ([]byte, error) {
	var buf bytes.Buffer
	w := writerPool.Get().(*lz4.Writer)
	defer writerPool.Put(w)

	w.Reset(&buf)

	var opt lz4.Option
	switch level {
	case Fast:
		opt = lz4.CompressionLevelOption(lz4.Fast)
	case Best:
		opt = lz4.CompressionLevelOption(lz4.Level9)
	default:
		opt = lz4.CompressionLevelOption(lz4.Level4)
	}
	if err := w.Apply(opt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Output larger than MaxDecompressedSize is
// rejected.
func Decompress(data []byte) ([]byte, error) {
	r := readerPool.Get().(*lz4.Reader)
	defer readerPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}
	if n > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrDecompressionFailed, MaxDecompressedSize)
	}
	return buf.Bytes(), nil
}

// Pack compresses data when that makes it smaller. It reports whether the
// returned bytes are compressed; when not, data is returned unchanged.
func Pack(data []byte, level Level) ([]byte, bool) {
	if level == None {
		return data, false
	}
	compressed, err := Compress(data, level)
	if err != nil || len(compressed) >= len(data) {
		return data, false
	}
	return compressed, true
}
