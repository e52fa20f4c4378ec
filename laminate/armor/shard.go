package armor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShardCorrupt = errors.New("armor: shard is corrupt")

var shardMagic = [4]byte{'L', 'M', 'S', '1'}

// headerSize is magic(4) data(1) parity-1(1) index(1) depth(1) size(4) root(32).
const headerSize = 4 + 1 + 1 + 1 + 1 + 4 + HashSize

// Manifest describes one sealed ciphertext. Every shard carries a copy.
type Manifest struct {
	DataShards   int
	ParityShards int
	// Size is the byte length of the ciphertext before splitting.
	Size int
	Root [HashSize]byte
}

func (m Manifest) Total() int { return m.DataShards + m.ParityShards }

// Shard is one piece of an armored ciphertext.
type Shard struct {
	Manifest Manifest
	Index    int
	Proof    [][]byte
	Data     []byte
}

// Verify checks the shard's proof against its manifest root.
func (s Shard) Verify() error {
	if s.Index < 0 || s.Index >= s.Manifest.Total() {
		return fmt.Errorf("%w: index %d of %d", ErrShardCorrupt, s.Index, s.Manifest.Total())
	}
	err := VerifyProof(Proof{Index: s.Index, Leaf: HashShard(s.Data), Siblings: s.Proof}, s.Manifest.Root[:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShardCorrupt, err)
	}
	return nil
}

// MarshalBinary encodes the shard:
//
//	"LMS1" | data | parity-1 | index | depth | size (u32 BE) | root | proof... | data
func (s Shard) MarshalBinary() ([]byte, error) {
	m := s.Manifest
	if m.DataShards <= 0 || m.ParityShards <= 0 || m.Total() > MaxShards || m.DataShards > 255 {
		return nil, ErrInvalidConfig
	}
	if s.Index < 0 || s.Index >= m.Total() || len(s.Proof) > 8 {
		return nil, fmt.Errorf("%w: index %d, depth %d", ErrShardCorrupt, s.Index, len(s.Proof))
	}
	if m.Size < 0 || uint64(m.Size) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: size %d", ErrShardCorrupt, m.Size)
	}

	out := make([]byte, headerSize, headerSize+len(s.Proof)*HashSize+len(s.Data))
	copy(out[0:4], shardMagic[:])
	out[4] = byte(m.DataShards)
	out[5] = byte(m.ParityShards - 1)
	out[6] = byte(s.Index)
	out[7] = byte(len(s.Proof))
	binary.BigEndian.PutUint32(out[8:12], uint32(m.Size))
	copy(out[12:headerSize], m.Root[:])
	for _, sibling := range s.Proof {
		if len(sibling) != HashSize {
			return nil, fmt.Errorf("%w: proof node of %d bytes", ErrShardCorrupt, len(sibling))
		}
		out = append(out, sibling...)
	}
	return append(out, s.Data...), nil
}

// ParseShard decodes a shard produced by MarshalBinary. It checks structure
// only; call Verify to check the proof.
func ParseShard(b []byte) (Shard, error) {
	if len(b) < headerSize || [4]byte(b[0:4]) != shardMagic {
		return Shard{}, fmt.Errorf("%w: bad header", ErrShardCorrupt)
	}
	s := Shard{
		Manifest: Manifest{
			DataShards:   int(b[4]),
			ParityShards: int(b[5]) + 1,
			Size:         int(binary.BigEndian.Uint32(b[8:12])),
		},
		Index: int(b[6]),
	}
	copy(s.Manifest.Root[:], b[12:headerSize])
	if s.Manifest.DataShards == 0 {
		return Shard{}, fmt.Errorf("%w: zero data shards", ErrShardCorrupt)
	}

	depth := int(b[7])
	rest := b[headerSize:]
	if len(rest) < depth*HashSize {
		return Shard{}, fmt.Errorf("%w: truncated proof", ErrShardCorrupt)
	}
	s.Proof = make([][]byte, depth)
	for i := range s.Proof {
		s.Proof[i] = append([]byte(nil), rest[i*HashSize:(i+1)*HashSize]...)
	}
	s.Data = append([]byte(nil), rest[depth*HashSize:]...)
	return s, nil
}
