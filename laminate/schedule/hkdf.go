package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	HKDFName = "hkdf-sha256/v1"

	// hkdfKeySize is the derived key size in bytes; the key string is its hex form.
	hkdfKeySize = 32
)

var hkdfInfo = []byte("laminate-round-key")

// HKDF derives each round key with HKDF-SHA256 over the base key. The round
// index is bound into the info parameter, so every round (including 0 and 1)
// gets an independent key.
type HKDF struct {
	// Salt is optional; nil means the all-zero HKDF salt.
	Salt []byte
}

func (HKDF) Name() string { return HKDFName }

func (h HKDF) Derive(base string, round int) (string, error) {
	if round < 0 {
		return "", ErrNegativeRound
	}
	key, err := deriveKey([]byte(base), h.Salt, roundInfo(round), hkdfKeySize)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func roundInfo(round int) []byte {
	info := make([]byte, 0, len(hkdfInfo)+8)
	info = append(info, hkdfInfo...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(round))
	return append(info, idx[:]...)
}

func deriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}
