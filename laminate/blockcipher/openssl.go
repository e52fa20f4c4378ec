package blockcipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	saltSize = 8
	keySize  = 32
)

var saltedPrefix = []byte("Salted__")

// encoding rejects non-canonical base64 so that every character of a
// ciphertext is significant.
var encoding = base64.StdEncoding.Strict()

// OpenSSL is AES-256-CBC in the OpenSSL/CryptoJS passphrase format.
type OpenSSL struct {
	salts io.Reader // nil: synthetic salt
}

// Option configures an OpenSSL cipher.
type Option func(*OpenSSL)

// WithRandomSalt draws a fresh salt from crypto/rand for every Encrypt.
func WithRandomSalt() Option {
	return WithSaltReader(rand.Reader)
}

// WithSaltReader draws salts from r.
func WithSaltReader(r io.Reader) Option {
	return func(o *OpenSSL) { o.salts = r }
}

// NewOpenSSL returns the default AES-256-CBC block cipher.
func NewOpenSSL(opts ...Option) *OpenSSL {
	o := &OpenSSL{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Randomized reports whether salts are drawn per call.
func (o *OpenSSL) Randomized() bool { return o.salts != nil }

func (o *OpenSSL) salt(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if o.salts != nil {
		if _, err := io.ReadFull(o.salts, salt); err != nil {
			return nil, fmt.Errorf("blockcipher: read salt: %w", err)
		}
		return salt, nil
	}
	m := hmac.New(sha256.New, []byte(passphrase))
	m.Write(plaintext)
	copy(salt, m.Sum(nil))
	return salt, nil
}

func (o *OpenSSL) Encrypt(passphrase string, plaintext []byte) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}
	salt, err := o.salt(passphrase, plaintext)
	if err != nil {
		return "", err
	}
	key, iv := bytesToKey([]byte(passphrase), salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("blockcipher: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)

	out := make([]byte, len(saltedPrefix)+saltSize+len(padded))
	copy(out, saltedPrefix)
	copy(out[len(saltedPrefix):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(saltedPrefix)+saltSize:], padded)

	return encoding.EncodeToString(out), nil
}

func (o *OpenSSL) Decrypt(passphrase, ciphertext string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	header := len(saltedPrefix) + saltSize
	if len(raw) < header+aes.BlockSize || !bytes.HasPrefix(raw, saltedPrefix) {
		return nil, ErrMalformedCiphertext
	}
	body := raw[header:]
	if len(body)%aes.BlockSize != 0 {
		return nil, ErrMalformedCiphertext
	}

	key, iv := bytesToKey([]byte(passphrase), raw[len(saltedPrefix):header])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("blockcipher: new cipher: %w", err)
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return pkcs7Unpad(plain, aes.BlockSize)
}

// bytesToKey is OpenSSL's EVP_BytesToKey with MD5 and a single iteration,
// producing a 32-byte key followed by a 16-byte IV.
func bytesToKey(passphrase, salt []byte) (key, iv []byte) {
	var (
		derived []byte
		prev    []byte
	)
	for len(derived) < keySize+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keySize], derived[keySize : keySize+aes.BlockSize]
}
