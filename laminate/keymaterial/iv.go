package keymaterial

import (
	"encoding/hex"
	"fmt"
)

const (
	// IVSize is the size of the derived initialization vector (one AES block).
	IVSize = 16

	// MinIVKeySize is the shortest key that can produce an IV: the derivation
	// reads two 16-hex-character windows from the key's hex form.
	MinIVKeySize = 8
)

// InitializationVector derives a 16-byte IV from the key bytes alone:
//
//  1. reverse the bytes and hex-encode them into h
//  2. mid = len(h) / 2
//  3. center = h[mid-8 : mid+8]
//  4. end = h[len(h)-16:]
//  5. IV = hex-decode(end + center)
//
// The result is a pure function of the key; no randomness is involved.
func (k *Key) InitializationVector() ([IVSize]byte, error) {
	var iv [IVSize]byte
	if err := k.AssertValidity(); err != nil {
		return iv, err
	}
	if len(k.raw) < MinIVKeySize {
		return iv, fmt.Errorf("%w: key of %d bytes is too short to derive an IV (need %d)", ErrInvalidKey, len(k.raw), MinIVKeySize)
	}

	reversed := make([]byte, len(k.raw))
	for i, b := range k.raw {
		reversed[len(k.raw)-1-i] = b
	}
	h := hex.EncodeToString(reversed)

	mid := len(h) / 2
	center := h[mid-8 : mid+8]
	end := h[len(h)-16:]

	if _, err := hex.Decode(iv[:], []byte(end+center)); err != nil {
		return iv, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return iv, nil
}

// InitializationVectorHex is the lowercase hex form of InitializationVector,
// the form used as keyed-hash key material.
func (k *Key) InitializationVectorHex() (string, error) {
	iv, err := k.InitializationVector()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(iv[:]), nil
}
