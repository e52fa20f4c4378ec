// Package blockcipher is the single-round block cipher the layered engine
// drives: AES-256-CBC keyed from a passphrase string.
//
// OpenSSL produces the format used by OpenSSL's `enc -md md5` and by CryptoJS
// when given a passphrase:
//
//	base64( "Salted__" || salt[8] || AES-256-CBC(PKCS#7(plaintext)) )
//
// where the AES key and IV come from EVP_BytesToKey(MD5, 1 iteration) over
// passphrase||salt. The IV here is internal to the cipher and unrelated to the
// key-derived IV used for integrity tags.
//
// By default the salt is synthetic: the first 8 bytes of
// HMAC-SHA256(passphrase, plaintext). Encrypting the same plaintext under the
// same passphrase therefore yields the same ciphertext. WithRandomSalt opts in
// to a fresh salt per call.
package blockcipher
