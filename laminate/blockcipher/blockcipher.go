package blockcipher

import "errors"

var (
	ErrMalformedCiphertext = errors.New("blockcipher: malformed ciphertext")
	ErrDecryptionFailed    = errors.New("blockcipher: decryption failed")
	ErrEmptyPassphrase     = errors.New("blockcipher: empty passphrase")
)

// BlockCipher encrypts a byte payload under a text key and returns an opaque
// text ciphertext. Implementations must be safe for concurrent use.
type BlockCipher interface {
	Encrypt(passphrase string, plaintext []byte) (string, error)
	Decrypt(passphrase, ciphertext string) ([]byte, error)
}
