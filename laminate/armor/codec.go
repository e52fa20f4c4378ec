package armor

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrTooManyLost   = errors.New("armor: too many shards lost, cannot recover")
	ErrInvalidConfig = errors.New("armor: invalid data/parity configuration")
)

// MaxShards is the largest data+parity total a shard header can describe.
const MaxShards = 256

// codec wraps a Reed-Solomon encoder.
type codec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

func newCodec(dataShards, parityShards int) (*codec, error) {
	if dataShards <= 0 || parityShards <= 0 || dataShards+parityShards > MaxShards {
		return nil, ErrInvalidConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &codec{
		enc:          enc,
		dataShards:   dataShards,
		parityShards: parityShards,
	}, nil
}

func (c *codec) total() int { return c.dataShards + c.parityShards }

// encode splits data and computes parity. All returned shards have the same
// length.
func (c *codec) encode(data []byte) ([][]byte, error) {
	shards, err := c.enc.Split(data)
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// reconstructData fills in missing (nil) data shards.
func (c *codec) reconstructData(shards [][]byte) error {
	err := c.enc.ReconstructData(shards)
	if errors.Is(err, reedsolomon.ErrTooFewShards) {
		return ErrTooManyLost
	}
	return err
}

// join concatenates data shards and drops the split padding.
func (c *codec) join(shards [][]byte, outSize int) []byte {
	data := make([]byte, 0, outSize)
	for i := 0; i < c.dataShards && len(data) < outSize; i++ {
		remaining := outSize - len(data)
		if remaining >= len(shards[i]) {
			data = append(data, shards[i]...)
		} else {
			data = append(data, shards[i][:remaining]...)
		}
	}
	return data
}
