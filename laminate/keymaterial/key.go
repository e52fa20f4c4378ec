package keymaterial

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

var (
	ErrInvalidKey     = errors.New("keymaterial: invalid key")
	ErrInvalidKeyType = errors.New("keymaterial: key source must be a string or []byte")
)

// Options carries the metadata attached to a key. The zero value yields a
// secret, non-extractable key with no usages and no algorithm, which does not
// validate: every key must name its algorithm.
type Options struct {
	Algorithm   *Algorithm
	Extractable bool
	Type        Type
	Usages      []Usage
}

// Key is immutable key material. It is safe for concurrent use.
type Key struct {
	raw         []byte
	length      int
	algorithm   Algorithm
	extractable bool
	typ         Type
	usages      []Usage

	valid  bool
	reason error
}

// New builds a key from a string or byte slice. Any other source type fails
// with ErrInvalidKeyType. Invalid metadata does not fail construction; it marks
// the key invalid (see AssertValidity).
func New(source any, opts Options) (*Key, error) {
	switch s := source.(type) {
	case string:
		return build([]byte(s), opts), nil
	case []byte:
		return build(s, opts), nil
	default:
		return nil, fmt.Errorf("%w, got %T", ErrInvalidKeyType, source)
	}
}

// FromString builds a key from the UTF-8 bytes of s.
func FromString(s string, opts Options) (*Key, error) { return New(s, opts) }

// FromBytes builds a key from a copy of b.
func FromBytes(b []byte, opts Options) (*Key, error) { return New(b, opts) }

func build(src []byte, opts Options) *Key {
	raw := make([]byte, len(src))
	copy(raw, src)

	k := &Key{
		raw:         raw,
		length:      len(raw),
		extractable: opts.Extractable,
		typ:         opts.Type,
	}
	if opts.Algorithm != nil {
		k.algorithm = opts.Algorithm.clone()
	}
	if k.typ == "" {
		k.typ = TypeSecret
	}
	if len(opts.Usages) > 0 {
		k.usages = append([]Usage(nil), opts.Usages...)
	}

	k.reason = k.validate()
	k.valid = k.reason == nil
	if !k.valid {
		slog.Default().Warn("keymaterial: key failed validation", "reason", k.reason.Error())
	}
	return k
}

func (k *Key) validate() error {
	if err := k.algorithm.validate(); err != nil {
		return err
	}
	if err := validateUsages(k.usages); err != nil {
		return err
	}
	if !k.typ.valid() {
		return fmt.Errorf("key type must be one of private, public, secret, got %q", k.typ)
	}
	if len(k.raw) != k.length {
		return fmt.Errorf("key length %d does not match declared length %d", len(k.raw), k.length)
	}
	if len(k.raw) == 0 {
		return errors.New("key is empty")
	}
	return nil
}

// AssertValidity reports ErrInvalidKey, wrapped with the failed rule, when the
// key did not validate.
func (k *Key) AssertValidity() error {
	if k == nil {
		return fmt.Errorf("%w: nil key", ErrInvalidKey)
	}
	if !k.valid {
		return fmt.Errorf("%w: %v", ErrInvalidKey, k.reason)
	}
	return nil
}

// Valid reports whether the key passed validation.
func (k *Key) Valid() bool { return k != nil && k.valid }

// Value returns the key bytes decoded as text. This is the key string the
// scheduler and the block cipher consume. Invalid UTF-8 sequences decode to
// U+FFFD, one per offending byte.
func (k *Key) Value() (string, error) {
	if err := k.AssertValidity(); err != nil {
		return "", err
	}
	if utf8.Valid(k.raw) {
		return string(k.raw), nil
	}
	return string([]rune(string(k.raw))), nil
}

// Bytes returns a copy of the raw key bytes.
func (k *Key) Bytes() []byte {
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Len returns the key length in bytes.
func (k *Key) Len() int { return k.length }

func (k *Key) Algorithm() Algorithm { return k.algorithm.clone() }

func (k *Key) Type() Type { return k.typ }

func (k *Key) Extractable() bool { return k.extractable }

func (k *Key) Usages() []Usage { return append([]Usage(nil), k.usages...) }

// Allows reports whether u is among the key's usages.
func (k *Key) Allows(u Usage) bool {
	for _, have := range k.usages {
		if have == u {
			return true
		}
	}
	return false
}

// Fingerprint identifies the key without revealing it: "lk1" followed by the
// base58 SHA-256 of the raw bytes.
func (k *Key) Fingerprint() string {
	sum := sha256.Sum256(k.raw)
	return "lk1" + base58.Encode(sum[:])
}

// String never includes key bytes.
func (k *Key) String() string {
	if k == nil {
		return "Key(nil)"
	}
	return fmt.Sprintf("Key(%s, %s, %d bytes, valid=%t)", k.algorithm.Name, k.Fingerprint(), k.length, k.valid)
}
