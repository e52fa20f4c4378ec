// Package schedule derives one key string per round from a base key string.
//
// Both directions of the layered cipher recompute every round key from the
// base key and the round index; nothing per round is ever stored. A schedule
// is therefore a pure, versioned function: ciphertexts can only be opened with
// the same schedule (by Name) that produced them.
//
// Three schedules are provided:
//   - Mutation (mutation/v1): a keyed character permutation, the default
//   - HKDF (hkdf-sha256/v1): HKDF-SHA256 expansion keyed by the round index
//   - Ratchet (ratchet-sha256/v1): a SHA-256 hash chain stepped once per round
package schedule
