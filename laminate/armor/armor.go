package armor

import (
	"errors"
	"fmt"
)

var ErrManifestMismatch = errors.New("armor: shards belong to a different configuration")

// Armor seals and opens ciphertexts with a fixed data/parity split. It is
// safe for concurrent use.
type Armor struct {
	codec *codec
}

// New returns an Armor tolerating the loss of up to parityShards shards.
func New(dataShards, parityShards int) (*Armor, error) {
	c, err := newCodec(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Armor{codec: c}, nil
}

func (a *Armor) DataShards() int { return a.codec.dataShards }

func (a *Armor) ParityShards() int { return a.codec.parityShards }

// Overhead returns the storage overhead ratio (e.g. 1.5 for 4+2).
func (a *Armor) Overhead() float64 {
	return float64(a.codec.total()) / float64(a.codec.dataShards)
}

// Seal splits ciphertext into data and parity shards.
func (a *Armor) Seal(ciphertext string) ([]Shard, error) {
	if ciphertext == "" {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrInvalidConfig)
	}
	pieces, err := a.codec.encode([]byte(ciphertext))
	if err != nil {
		return nil, err
	}

	hashes := make([][]byte, len(pieces))
	for i, p := range pieces {
		hashes[i] = HashShard(p)
	}
	tree, err := BuildTree(hashes)
	if err != nil {
		return nil, err
	}

	m := Manifest{
		DataShards:   a.codec.dataShards,
		ParityShards: a.codec.parityShards,
		Size:         len(ciphertext),
	}
	copy(m.Root[:], tree.Root())

	shards := make([]Shard, len(pieces))
	for i, p := range pieces {
		proof, err := tree.GenerateProof(i)
		if err != nil {
			return nil, err
		}
		shards[i] = Shard{Manifest: m, Index: i, Proof: proof.Siblings, Data: p}
	}
	return shards, nil
}

// Open reconstructs the ciphertext from any subset of shards. Shards that fail
// their proof, disagree with the majority manifest or repeat an index are
// treated as lost.
func (a *Armor) Open(shards []Shard) (string, error) {
	m, ok := majorityManifest(shards)
	if !ok {
		return "", ErrTooManyLost
	}
	if m.DataShards != a.codec.dataShards || m.ParityShards != a.codec.parityShards {
		return "", fmt.Errorf("%w: have %d+%d, shards say %d+%d", ErrManifestMismatch,
			a.codec.dataShards, a.codec.parityShards, m.DataShards, m.ParityShards)
	}

	pieces := make([][]byte, a.codec.total())
	for _, s := range shards {
		if s.Manifest != m || s.Verify() != nil {
			continue
		}
		if pieces[s.Index] == nil {
			pieces[s.Index] = s.Data
		}
	}

	if err := a.codec.reconstructData(pieces); err != nil {
		return "", err
	}
	return string(a.codec.join(pieces, m.Size)), nil
}

// Open reconstructs using the configuration recorded in the shards.
func Open(shards []Shard) (string, error) {
	m, ok := majorityManifest(shards)
	if !ok {
		return "", ErrTooManyLost
	}
	a, err := New(m.DataShards, m.ParityShards)
	if err != nil {
		return "", err
	}
	return a.Open(shards)
}

func majorityManifest(shards []Shard) (Manifest, bool) {
	counts := make(map[Manifest]int)
	var best Manifest
	top := 0
	for _, s := range shards {
		counts[s.Manifest]++
		if c := counts[s.Manifest]; c > top {
			best, top = s.Manifest, c
		}
	}
	return best, top > 0
}
