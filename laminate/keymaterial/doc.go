// Package keymaterial wraps raw symmetric key bytes together with the metadata
// that governs how they may be used.
//
// A Key never fails construction because of bad metadata. Validation runs
// eagerly and records the outcome; callers assert validity before relying on
// the key:
//
//	k, _ := keymaterial.FromString(secret, keymaterial.Options{
//		Algorithm: &keymaterial.Algorithm{Name: "aes-256-cbc"},
//		Usages:    []keymaterial.Usage{keymaterial.UsageEncrypt, keymaterial.UsageDecrypt},
//	})
//	if err := k.AssertValidity(); err != nil {
//		return err
//	}
//
// Every key also yields a deterministic 16-byte initialization vector derived
// only from its own bytes (see Key.InitializationVector). Identical key bytes
// always produce the same IV, so values keyed by it are linkable.
package keymaterial
