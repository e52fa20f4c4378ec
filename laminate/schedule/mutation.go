package schedule

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const MutationName = "mutation/v1"

// ErrUnencodableKey is returned when a shifted character would fall in the
// UTF-16 surrogate range or past U+10FFFF. Such a rune cannot be encoded and
// would collapse to U+FFFD, so distinct keys could share round keys.
var ErrUnencodableKey = errors.New("schedule: key character cannot be shifted")

// Mutation shifts every character of the base key by 2*max(round, 1) code
// points and reverses the result. It is a keyed permutation, not a KDF: rounds
// 0 and 1 share a key, and the derived key has the same length as the base.
//
// The shift applies to Unicode code points. For characters in the Basic
// Multilingual Plane this equals shifting UTF-16 code units; for characters
// above U+FFFF it does not, since a UTF-16 implementation would shift only the
// low surrogate. Keys whose shifted characters are not valid code points are
// rejected with ErrUnencodableKey.
type Mutation struct {
	// Algorithm is the configured cipher name. Reserved asymmetric names make
	// Derive fail with ErrNotImplemented.
	Algorithm string
}

func (Mutation) Name() string { return MutationName }

func (m Mutation) Derive(base string, round int) (string, error) {
	if IsAsymmetric(m.Algorithm) {
		return "", fmt.Errorf("%w: %s", ErrNotImplemented, m.Algorithm)
	}
	if round < 0 {
		return "", ErrNegativeRound
	}

	factor := round
	if factor < 1 {
		factor = 1
	}
	shift := rune(2 * factor)

	runes := []rune(base)
	out := make([]rune, len(runes))
	for i, r := range runes {
		shifted := r + shift
		if !utf8.ValidRune(shifted) {
			return "", fmt.Errorf("%w: %U at %d, round %d", ErrUnencodableKey, r, i, round)
		}
		out[len(runes)-1-i] = shifted
	}
	return string(out), nil
}
