package laminate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TheusHen/laminate/laminate/blockcipher"
	"github.com/TheusHen/laminate/laminate/compress"
	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/mac"
	"github.com/TheusHen/laminate/laminate/round"
	"github.com/TheusHen/laminate/laminate/schedule"
)

// Cipher is a layered cipher. All round keys are derived at construction, so
// a Cipher is immutable and safe for concurrent use; the rounds of a single
// call always run strictly in order.
type Cipher struct {
	algorithm string
	layers    int
	scheduler schedule.Scheduler
	level     compress.Level
	logger    *slog.Logger

	initKey *keymaterial.Key
	ivHex   string
	initial *round.Cipher

	// rounds[0:layers] are the data rounds, rounds[layers] is the envelope.
	rounds []*round.Cipher
}

// envelope is the plaintext of the outermost round.
type envelope struct {
	Signature string `json:"signature"`
	Final     string `json:"final"`
	Codec     string `json:"codec,omitempty"`
}

type envelopeIn struct {
	Signature *string `json:"signature"`
	Final     *string `json:"final"`
	Codec     string  `json:"codec"`
}

// Decrypted is the result of Cipher.Decrypt.
type Decrypted struct {
	// Payload is the original serialized value.
	Payload   json.RawMessage
	Signature string
}

// Decode unmarshals the payload into v.
func (d *Decrypted) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Result is the typed form of Decrypted returned by DecryptAs.
type Result[T any] struct {
	Payload   T
	Signature string
}

// New validates cfg and derives every round key.
func New(cfg Config, opts ...Option) (*Cipher, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.block == nil {
		o.block = blockcipher.NewOpenSSL()
	}

	algorithm, err := checkAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	initKey, err := resolveKey(cfg.Key, algorithm)
	if err != nil {
		return nil, err
	}
	if err := initKey.AssertValidity(); err != nil {
		return nil, err
	}
	base, err := initKey.Value()
	if err != nil {
		return nil, err
	}
	ivHex, err := initKey.InitializationVectorHex()
	if err != nil {
		return nil, err
	}

	if o.scheduler == nil {
		o.scheduler = schedule.Mutation{Algorithm: algorithm}
	}

	roundOpts := []round.Option{round.WithBlockCipher(o.block), round.WithLogger(o.logger)}
	if o.clock != nil {
		roundOpts = append(roundOpts, round.WithClock(o.clock))
	}

	initial, err := round.New(initKey, roundOpts...)
	if err != nil {
		return nil, err
	}

	layers := ClampLayers(cfg.Layers)
	if layers != cfg.Layers && cfg.Layers != 0 {
		o.logger.Debug("laminate: layer count clamped", "requested", cfg.Layers, "layers", layers)
	}

	rounds := make([]*round.Cipher, layers+1)
	for i := range rounds {
		derived, err := o.scheduler.Derive(base, i)
		if err != nil {
			return nil, fmt.Errorf("laminate: derive round %d: %w", i, err)
		}
		k, err := keymaterial.New(derived, roundKeyOptions(algorithm))
		if err != nil {
			return nil, err
		}
		rc, err := round.New(k, roundOpts...)
		if err != nil {
			return nil, fmt.Errorf("laminate: round %d: %w", i, err)
		}
		rounds[i] = rc
	}

	o.logger.Debug("laminate: cipher ready",
		"layers", layers,
		"scheduler", o.scheduler.Name(),
		"key_fingerprint", initKey.Fingerprint())

	return &Cipher{
		algorithm: algorithm,
		layers:    layers,
		scheduler: o.scheduler,
		level:     o.level,
		logger:    o.logger,
		initKey:   initKey,
		ivHex:     ivHex,
		initial:   initial,
		rounds:    rounds,
	}, nil
}

func checkAlgorithm(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultAlgorithm, nil
	}
	if err := schedule.CheckAlgorithm(name); err != nil {
		return "", err
	}
	if name != DefaultAlgorithm {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return name, nil
}

func roundKeyOptions(algorithm string) keymaterial.Options {
	return keymaterial.Options{
		Algorithm: &keymaterial.Algorithm{Name: algorithm},
		Usages:    []keymaterial.Usage{keymaterial.UsageEncrypt, keymaterial.UsageDecrypt},
	}
}

func resolveKey(src any, algorithm string) (*keymaterial.Key, error) {
	missing := fmt.Errorf("%w: %w", ErrKeyRequired, ErrInvalidKey)
	switch k := src.(type) {
	case nil:
		return nil, missing
	case *keymaterial.Key:
		if k == nil {
			return nil, missing
		}
		return k, nil
	case string:
		if k == "" {
			return nil, missing
		}
	case []byte:
		if len(k) == 0 {
			return nil, missing
		}
	}
	return keymaterial.New(src, roundKeyOptions(algorithm))
}

// Layers is the effective number of data rounds.
func (c *Cipher) Layers() int { return c.layers }

func (c *Cipher) Algorithm() string { return c.algorithm }

// InitKey is the configured key. It is never mutated.
func (c *Cipher) InitKey() *keymaterial.Key { return c.initKey }

func (c *Cipher) Scheduler() schedule.Scheduler { return c.scheduler }

// Compression is the level applied by Encrypt.
func (c *Cipher) Compression() compress.Level { return c.level }

// Round is a single-round cipher under the configured key.
func (c *Cipher) Round() *round.Cipher { return c.initial }

// Encrypt serializes data and seals it under every round followed by the
// envelope round.
//
// Every round header records the clock reading, so with the default system
// clock two calls on the same data give different ciphertexts. Output is
// reproducible only under a fixed clock (WithClock) with the default
// deterministic salt.
func (c *Cipher) Encrypt(data any) (string, error) {
	serialized, err := round.Serialize(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	signature := mac.SumBytes(serialized, c.ivHex)

	payload := string(serialized)
	var codec string
	if packed, ok := compress.Pack(serialized, c.level); ok {
		payload = base64.StdEncoding.EncodeToString(packed)
		codec = compress.Codec
	}

	for i := 0; i < c.layers; i++ {
		payload, err = c.rounds[i].Encrypt(payload)
		if err != nil {
			return "", fmt.Errorf("laminate: round %d: %w", i, err)
		}
	}

	return c.rounds[c.layers].Encrypt(envelope{
		Signature: signature,
		Final:     payload,
		Codec:     codec,
	})
}

// Decrypt opens the envelope, peels the data rounds in reverse order and
// verifies the outer signature. Any failing round aborts the call.
func (c *Cipher) Decrypt(ciphertext string) (*Decrypted, error) {
	out, err := c.rounds[c.layers].Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}

	var env envelopeIn
	if err := json.Unmarshal(out.Payload, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformedPayload, err)
	}
	if env.Final == nil || env.Signature == nil {
		return nil, fmt.Errorf("%w: envelope must carry final and signature", ErrMalformedPayload)
	}

	final := *env.Final
	for i := c.layers - 1; i >= 0; i-- {
		d, err := c.rounds[i].Decrypt(final)
		if err != nil {
			return nil, err
		}
		if err := d.Decode(&final); err != nil {
			return nil, err
		}
	}

	switch env.Codec {
	case "":
	case compress.Codec:
		packed, err := base64.StdEncoding.Strict().DecodeString(final)
		if err != nil {
			return nil, fmt.Errorf("%w: compressed payload: %v", ErrMalformedPayload, err)
		}
		raw, err := compress.Decompress(packed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		final = string(raw)
	default:
		return nil, fmt.Errorf("%w: unknown codec %q", ErrMalformedPayload, env.Codec)
	}

	if !mac.Equal(mac.Sum(final, c.ivHex), *env.Signature) {
		return nil, ErrTamperedData
	}
	if !json.Valid([]byte(final)) {
		return nil, fmt.Errorf("%w: payload is not JSON", ErrMalformedPayload)
	}

	return &Decrypted{
		Payload:   json.RawMessage(final),
		Signature: *env.Signature,
	}, nil
}

// DecryptAs decrypts ciphertext and decodes the payload into T.
func DecryptAs[T any](c *Cipher, ciphertext string) (Result[T], error) {
	var res Result[T]
	d, err := c.Decrypt(ciphertext)
	if err != nil {
		return res, err
	}
	if err := d.Decode(&res.Payload); err != nil {
		return res, err
	}
	res.Signature = d.Signature
	return res, nil
}
