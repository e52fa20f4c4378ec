// Package laminate provides a layered symmetric encryption engine.
//
// A Cipher wraps a payload in several sequential rounds of AES-256-CBC, each
// under a key derived from the configured key by a Scheduler, then seals the
// result in an envelope round carrying an end-to-end HMAC-SHA512 signature of
// the original serialized payload. Every round carries its own signature as
// well, so corruption is detected at the outermost damaged round.
//
// Output is deterministic for a given key, payload and clock. Callers that need
// unlinkable ciphertexts should configure a randomized block cipher (see
// blockcipher.WithRandomSalt).
package laminate
