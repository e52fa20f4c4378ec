package laminate

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// EncryptAll encrypts independent items concurrently, at most limit at a time
// (limit <= 0 means unbounded). Results keep the order of items. The first
// failure cancels the remaining work.
func (c *Cipher) EncryptAll(ctx context.Context, items []any, limit int) ([]string, error) {
	out := make([]string, len(items))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ct, err := c.Encrypt(item)
			if err != nil {
				return err
			}
			out[i] = ct
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptAll is the batch counterpart of Decrypt.
func (c *Cipher) DecryptAll(ctx context.Context, ciphertexts []string, limit int) ([]*Decrypted, error) {
	out := make([]*Decrypted, len(ciphertexts))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ct := range ciphertexts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := c.Decrypt(ct)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
