// Package round implements one round of the layered cipher.
//
// A round serializes its input to JSON, tags it with HMAC-SHA512 keyed by the
// hex form of the round key's derived IV, prepends a small JSON header and
// encrypts the whole with the block cipher:
//
//	blockcipher( header-json || Separator || payload-json )
//
// Decryption reverses this and rejects the round when the recomputed tag does
// not match the header, before any further round is attempted.
package round
