// Package mac is the keyed hash used for integrity tags: HMAC-SHA512 over the
// message bytes, keyed by the bytes of a text key, rendered as lowercase hex.
package mac

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// Size is the length of a tag in hex characters.
const Size = sha512.Size * 2

// Sum returns hex(HMAC-SHA512(key, message)).
func Sum(message, key string) string {
	return SumBytes([]byte(message), key)
}

// SumBytes is Sum for a message already held as bytes.
func SumBytes(message []byte, key string) string {
	m := hmac.New(sha512.New, []byte(key))
	m.Write(message)
	return hex.EncodeToString(m.Sum(nil))
}

// Equal compares two tags in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
