// Package armor protects ciphertexts at rest with Reed-Solomon erasure coding.
//
// A sealed ciphertext is split into data shards and parity shards. Every shard
// carries the manifest (shard counts, original size, Merkle root over the
// shard hashes) and its own Merkle proof, so a damaged shard is recognised and
// treated as lost instead of silently corrupting the reconstruction. With 4
// data and 2 parity shards, any 2 shards may be lost or damaged.
//
// This implementation uses the klauspost/reedsolomon library.
package armor
