package schedule

import (
	"crypto/sha256"
	"encoding/hex"
)

const RatchetName = "ratchet-sha256/v1"

// Ratchet walks a SHA-256 chain seeded with the base key. Round r uses the
// message key of chain step r:
//
//	chain_0     = SHA-256(base)
//	message_r   = SHA-256(chain_r || 0x01)
//	chain_{r+1} = SHA-256(chain_r || 0x02)
//
// Deriving round r costs r+1 chain steps.
type Ratchet struct{}

func (Ratchet) Name() string { return RatchetName }

func (Ratchet) Derive(base string, round int) (string, error) {
	if round < 0 {
		return "", ErrNegativeRound
	}
	chain := sha256.Sum256([]byte(base))
	for i := 0; i < round; i++ {
		chain = step(chain, 0x02)
	}
	msg := step(chain, 0x01)
	return hex.EncodeToString(msg[:]), nil
}

func step(chain [32]byte, label byte) [32]byte {
	h := sha256.New()
	h.Write(chain[:])
	h.Write([]byte{label})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
