package keymaterial

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func aesOptions() Options {
	return Options{
		Algorithm: &Algorithm{Name: "aes-256-cbc"},
		Usages:    []Usage{UsageEncrypt, UsageDecrypt},
	}
}

func TestNewDefaults(t *testing.T) {
	k, err := New("12345678901234567890123456789012", aesOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := k.AssertValidity(); err != nil {
		t.Fatalf("AssertValidity: %v", err)
	}
	if k.Type() != TypeSecret {
		t.Fatalf("expected secret type, got %q", k.Type())
	}
	if k.Extractable() {
		t.Fatalf("expected non-extractable key")
	}
	if k.Len() != 32 {
		t.Fatalf("expected 32 bytes, got %d", k.Len())
	}
	if !k.Allows(UsageEncrypt) || k.Allows(UsageSign) {
		t.Fatalf("unexpected usages: %v", k.Usages())
	}
}

func TestNewRejectsSourceType(t *testing.T) {
	_, err := New(42, aesOptions())
	if !errors.Is(err, ErrInvalidKeyType) {
		t.Fatalf("expected ErrInvalidKeyType, got %v", err)
	}
}

func TestInvalidMetadataMarksKeyInvalid(t *testing.T) {
	cases := map[string]Options{
		"no algorithm":    {},
		"empty component": {Algorithm: &Algorithm{Name: "composite", Components: map[string]Algorithm{"mac": {}}}},
		"bad type":        {Algorithm: &Algorithm{Name: "aes-256-cbc"}, Type: Type("shared")},
		"bad usage":       {Algorithm: &Algorithm{Name: "aes-256-cbc"}, Usages: []Usage{"encrypt", "launch"}},
		"negative length": {Algorithm: &Algorithm{Name: "aes-256-cbc", Length: -1}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			k, err := New("12345678901234567890123456789012", opts)
			if err != nil {
				t.Fatalf("New should not fail on bad metadata: %v", err)
			}
			if k.Valid() {
				t.Fatalf("expected invalid key")
			}
			if err := k.AssertValidity(); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("expected ErrInvalidKey, got %v", err)
			}
			if _, err := k.Value(); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Value: expected ErrInvalidKey, got %v", err)
			}
			if _, err := k.InitializationVector(); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("InitializationVector: expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestCompositeAlgorithm(t *testing.T) {
	k, _ := New("12345678901234567890123456789012", Options{
		Algorithm: &Algorithm{Name: "aes-hmac", Components: map[string]Algorithm{
			"cipher": {Name: "aes-256-cbc", Length: 256},
			"mac":    {Name: "hmac-sha512"},
		}},
	})
	if err := k.AssertValidity(); err != nil {
		t.Fatalf("AssertValidity: %v", err)
	}
	alg := k.Algorithm()
	alg.Components["cipher"] = Algorithm{}
	if k.Algorithm().Components["cipher"].Name != "aes-256-cbc" {
		t.Fatalf("Algorithm must return a copy")
	}
}

func TestEmptyKeyInvalid(t *testing.T) {
	k, _ := New([]byte{}, aesOptions())
	if k.Valid() {
		t.Fatalf("empty key should be invalid")
	}
}

func TestFromBytesCopies(t *testing.T) {
	src := []byte("12345678901234567890123456789012")
	k, _ := FromBytes(src, aesOptions())
	src[0] = 'x'
	v, err := k.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v[0] != '1' {
		t.Fatalf("key must not alias the caller's buffer")
	}
}

func TestInitializationVectorKnownAnswer(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"12345678901234567890123456789012", "38373635343332313039383736353433"},
		{"abcdefgh", "68676665646362616867666564636261"},
	}
	for _, tc := range cases {
		k, _ := New(tc.key, aesOptions())
		got, err := k.InitializationVectorHex()
		if err != nil {
			t.Fatalf("InitializationVectorHex(%q): %v", tc.key, err)
		}
		if got != tc.want {
			t.Fatalf("IV(%q) = %s, want %s", tc.key, got, tc.want)
		}
	}
}

func TestInitializationVectorDeterministic(t *testing.T) {
	a, _ := New("12345678901234567890123456789012", aesOptions())
	b, _ := New([]byte("12345678901234567890123456789012"), aesOptions())

	ivA1, _ := a.InitializationVector()
	ivA2, _ := a.InitializationVector()
	ivB, _ := b.InitializationVector()
	if ivA1 != ivA2 {
		t.Fatalf("IV changed between calls")
	}
	if ivA1 != ivB {
		t.Fatalf("IV differs across instances with identical bytes")
	}
}

func TestInitializationVectorSensitivity(t *testing.T) {
	// Same 5-byte prefix, divergent inside the IV windows.
	a, _ := New("12345678901234567890123456789012", aesOptions())
	b, _ := New("12345X78901234567890123456789012", aesOptions())
	ivA, _ := a.InitializationVector()
	ivB, _ := b.InitializationVector()
	if ivA == ivB {
		t.Fatalf("expected different IVs for different keys")
	}

	// Bytes outside both windows do not influence the IV.
	c, _ := New("12345678901234567890123456789013", aesOptions())
	ivC, _ := c.InitializationVector()
	if ivA != ivC {
		t.Fatalf("expected IV to depend only on the window bytes")
	}
}

func TestInitializationVectorShortKey(t *testing.T) {
	k, _ := New("short", aesOptions())
	if err := k.AssertValidity(); err != nil {
		t.Fatalf("short key should still validate: %v", err)
	}
	if _, err := k.InitializationVector(); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestValueInvalidUTF8(t *testing.T) {
	k, _ := New([]byte{'a', 0xff, 'b', 0xfe, 'c', 'd', 'e', 'f'}, aesOptions())
	v, err := k.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "a�b�cdef" {
		t.Fatalf("unexpected decoded value %q", v)
	}
}

func TestStringHidesKey(t *testing.T) {
	k, _ := New("super-secret-key-material-000000", aesOptions())
	s := k.String()
	if strings.Contains(s, "super-secret") {
		t.Fatalf("String leaked key bytes: %s", s)
	}
	if !strings.HasPrefix(k.Fingerprint(), "lk1") {
		t.Fatalf("unexpected fingerprint %s", k.Fingerprint())
	}
}

func TestGenerate(t *testing.T) {
	k, err := Generate(24, aesOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if k.Len() != 32 {
		t.Fatalf("expected length rounded to 32, got %d", k.Len())
	}
	if _, err := hex.DecodeString(string(k.Bytes())); err != nil {
		t.Fatalf("generated key is not hex text: %v", err)
	}
	if _, err := Generate(7, aesOptions()); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	for _, n := range []int{0, 2, 4, 6} {
		if _, err := Generate(n, aesOptions()); !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("Generate(%d): expected ErrInvalidLength, got %v", n, err)
		}
	}

	k, err = Generate(MinIVKeySize, aesOptions())
	if err != nil {
		t.Fatalf("Generate(%d): %v", MinIVKeySize, err)
	}
	if _, err := k.InitializationVector(); err != nil {
		t.Fatalf("shortest generated key must yield an IV: %v", err)
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	m, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}
	if n := len(strings.Fields(m)); n != 24 {
		t.Fatalf("expected 24 words, got %d", n)
	}
	a, err := FromMnemonic(m, "", aesOptions())
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	b, _ := FromMnemonic("  "+strings.ReplaceAll(m, " ", "   ")+"\n", "", aesOptions())
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("whitespace must not change the derived key")
	}
	c, _ := FromMnemonic(m, "extra", aesOptions())
	if bytes.Equal(a.Bytes(), c.Bytes()) {
		t.Fatalf("passphrase must change the derived key")
	}
	if _, err := FromMnemonic("not a real mnemonic", "", aesOptions()); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestStretch(t *testing.T) {
	salt := []byte("laminate-salt-01")
	a, err := Stretch("correct horse", salt, aesOptions())
	if err != nil {
		t.Fatalf("Stretch: %v", err)
	}
	b, _ := Stretch("correct horse", salt, aesOptions())
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("Stretch is not deterministic")
	}
	if a.Len() != 2*StretchSize {
		t.Fatalf("unexpected stretched key length %d", a.Len())
	}
	if _, err := Stretch("", salt, aesOptions()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for empty passphrase, got %v", err)
	}
}
