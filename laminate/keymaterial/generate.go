package keymaterial

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidLength   = errors.New("keymaterial: key length must be an even number of at least 8")
	ErrInvalidMnemonic = errors.New("keymaterial: invalid mnemonic")
)

// Argon2id parameters used by Stretch.
const (
	StretchTime     = 2
	StretchMemoryKB = 64 * 1024
	StretchThreads  = 1
	StretchSize     = 16 // bytes before hex encoding
)

// Generate creates a random key of length bytes, rounded up to the next power
// of two. The key bytes are hex text so that Value round-trips losslessly.
// length must be even and at least MinIVKeySize.
func Generate(length int, opts Options) (*Key, error) {
	if length < MinIVKeySize || length%2 != 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLength, length)
	}
	n := roundToPowerOfTwo(length)
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return New(hex.EncodeToString(buf), opts)
}

func roundToPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// NewMnemonic returns a fresh 24-word BIP-39 recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// FromMnemonic rebuilds a key from a BIP-39 phrase and optional passphrase.
// The same phrase always yields the same 32-character key.
func FromMnemonic(mnemonic, passphrase string, opts Options) (*Key, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return New(hex.EncodeToString(seed[:16]), opts)
}

// Stretch turns a human passphrase into key material with Argon2id.
func Stretch(passphrase string, salt []byte, opts Options) (*Key, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}
	derived := argon2.IDKey([]byte(passphrase), salt, StretchTime, StretchMemoryKB, StretchThreads, StretchSize)
	return New(hex.EncodeToString(derived), opts)
}
