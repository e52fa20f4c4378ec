package round

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TheusHen/laminate/laminate/blockcipher"
	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/mac"
)

var (
	ErrSerialization     = errors.New("round: data is not serializable")
	ErrMalformedPayload  = errors.New("round: malformed payload")
	ErrSignatureMismatch = errors.New("round: invalid payload signature")
)

// Decrypted is the result of opening one round.
type Decrypted struct {
	// Payload is the round's input as serialized JSON.
	Payload json.RawMessage
	// Age is the monotonic time since encryption. Only meaningful when both
	// sides ran in the same process.
	Age                 time.Duration
	Signature           string
	CurrentTimestamp    time.Time
	EncryptionTimestamp time.Time
}

// Decode unmarshals the payload into v.
func (d *Decrypted) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Cipher performs single rounds under one key. It is immutable and safe for
// concurrent use.
type Cipher struct {
	key   *keymaterial.Key
	value string
	ivHex string
	block blockcipher.BlockCipher
	clock Clock
}

// Option configures a Cipher.
type Option func(*config)

type config struct {
	block  blockcipher.BlockCipher
	clock  Clock
	logger *slog.Logger
}

// WithBlockCipher replaces the default AES-256-CBC cipher.
func WithBlockCipher(b blockcipher.BlockCipher) Option {
	return func(c *config) { c.block = b }
}

// WithClock replaces SystemClock.
func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New asserts key validity and caches the key string and IV.
func New(key *keymaterial.Key, opts ...Option) (*Cipher, error) {
	cfg := config{clock: SystemClock}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.block == nil {
		cfg.block = blockcipher.NewOpenSSL()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if err := key.AssertValidity(); err != nil {
		return nil, err
	}
	value, err := key.Value()
	if err != nil {
		return nil, err
	}
	ivHex, err := key.InitializationVectorHex()
	if err != nil {
		return nil, err
	}
	if name := key.Algorithm().Name; !strings.Contains(strings.ToLower(name), "aes") {
		cfg.logger.Warn("round: key is not declared as an AES key",
			"algorithm", name, "key_fingerprint", key.Fingerprint())
	}

	return &Cipher{
		key:   key,
		value: value,
		ivHex: ivHex,
		block: cfg.block,
		clock: cfg.clock,
	}, nil
}

// Key returns the round key.
func (c *Cipher) Key() *keymaterial.Key { return c.key }

// Encrypt serializes v and seals it as one round.
func (c *Cipher) Encrypt(v any) (string, error) {
	data, err := Serialize(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	h, err := Serialize(Header{
		Timestamp: c.clock.Now().UnixMilli(),
		Precise:   millis(c.clock.Elapsed()),
		Length:    len(data),
		Signature: mac.SumBytes(data, c.ivHex),
	})
	if err != nil {
		return "", fmt.Errorf("%w: header: %v", ErrSerialization, err)
	}

	plain := make([]byte, 0, len(h)+len(Separator)+len(data))
	plain = append(plain, h...)
	plain = append(plain, Separator...)
	plain = append(plain, data...)

	return c.block.Encrypt(c.value, plain)
}

// Decrypt opens one round and verifies its signature.
func (c *Cipher) Decrypt(ciphertext string) (*Decrypted, error) {
	plain, err := c.block.Decrypt(c.value, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	headerText, payloadText, ok := strings.Cut(string(plain), Separator)
	if !ok {
		return nil, fmt.Errorf("%w: separator not found", ErrMalformedPayload)
	}

	var h Header
	if err := json.Unmarshal([]byte(headerText), &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedPayload, err)
	}
	if h.Length != len(payloadText) {
		return nil, fmt.Errorf("%w: header declares %d bytes, got %d", ErrMalformedPayload, h.Length, len(payloadText))
	}

	if !mac.Equal(mac.Sum(payloadText, c.ivHex), h.Signature) {
		return nil, ErrSignatureMismatch
	}
	if !json.Valid([]byte(payloadText)) {
		return nil, fmt.Errorf("%w: payload is not JSON", ErrMalformedPayload)
	}

	return &Decrypted{
		Payload:             json.RawMessage(payloadText),
		Age:                 c.clock.Elapsed() - fromMillis(h.Precise),
		Signature:           h.Signature,
		CurrentTimestamp:    c.clock.Now(),
		EncryptionTimestamp: time.UnixMilli(h.Timestamp),
	}, nil
}
