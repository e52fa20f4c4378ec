package laminate

import (
	"log/slog"

	"github.com/TheusHen/laminate/laminate/blockcipher"
	"github.com/TheusHen/laminate/laminate/compress"
	"github.com/TheusHen/laminate/laminate/round"
	"github.com/TheusHen/laminate/laminate/schedule"
)

const (
	MinLayers        = 2
	MaxLayers        = 8
	DefaultLayers    = 3
	DefaultAlgorithm = "aes-256-cbc"
)

// Config is the user-facing configuration of a Cipher.
type Config struct {
	// Key is a string, a []byte or a *keymaterial.Key.
	Key any
	// Algorithm defaults to DefaultAlgorithm.
	Algorithm string
	// Layers is the number of data rounds. Zero selects DefaultLayers; other
	// values are clamped to [MinLayers, MaxLayers].
	Layers int
}

// Option customizes a Cipher beyond Config.
type Option func(*options)

type options struct {
	scheduler schedule.Scheduler
	block     blockcipher.BlockCipher
	clock     round.Clock
	logger    *slog.Logger
	level     compress.Level
}

// WithScheduler replaces the default mutation schedule. Both sides of a
// conversation must use the same schedule.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithBlockCipher replaces the per-round block cipher.
func WithBlockCipher(b blockcipher.BlockCipher) Option {
	return func(o *options) { o.block = b }
}

// WithClock sets the clock stamped into round headers.
func WithClock(c round.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCompression compresses serialized payloads before the first round when
// that makes them smaller. Decryption handles compressed envelopes regardless
// of this setting.
func WithCompression(level compress.Level) Option {
	return func(o *options) { o.level = level }
}

// ClampLayers applies the default and the [MinLayers, MaxLayers] bound.
func ClampLayers(n int) int {
	switch {
	case n == 0:
		return DefaultLayers
	case n < MinLayers:
		return MinLayers
	case n > MaxLayers:
		return MaxLayers
	default:
		return n
	}
}
