package protocol

import (
	"errors"
	"testing"
	"time"
)

const authKey = "0123456789abcdef"

var (
	serverNonce = []byte("server nonce 0123456789abcdef")
	binding     = []byte("tls exporter output 0123456789ab")
)

func TestHelloSignAndVerify(t *testing.T) {
	hello, err := NewHello(RoleClient, map[string]string{"compression": "lz4"})
	if err != nil {
		t.Fatalf("NewHello: %v", err)
	}
	hello.Layers = 3
	hello.Algorithm = "aes-256-cbc"
	hello.Scheduler = "mutation/v1"
	hello.Fingerprint = "lk1abc"
	hello.Sign(authKey, serverNonce, binding)

	if hello.Proof == "" {
		t.Fatalf("expected proof")
	}
	if err := hello.Verify(authKey, serverNonce, binding, time.Now()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	encoded, err := EncodeHello(hello)
	if err != nil {
		t.Fatalf("EncodeHello: %v", err)
	}
	decoded, err := DecodeHello(encoded)
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if err := decoded.Verify(authKey, serverNonce, binding, time.Now()); err != nil {
		t.Fatalf("Verify after decode: %v", err)
	}
	if decoded.Capabilities["compression"] != "lz4" {
		t.Fatalf("capabilities mismatch")
	}
}

func TestHelloVerifyFailures(t *testing.T) {
	peerNonce := []byte("client nonce")
	hello, err := NewHello(RoleServer, nil)
	if err != nil {
		t.Fatalf("NewHello: %v", err)
	}
	hello.Sign(authKey, peerNonce, binding)

	if err := hello.Verify("other key", peerNonce, binding, time.Now()); !errors.Is(err, ErrHelloBadProof) {
		t.Fatalf("expected ErrHelloBadProof for wrong key, got %v", err)
	}
	if err := hello.Verify(authKey, []byte("replayed"), binding, time.Now()); !errors.Is(err, ErrHelloBadProof) {
		t.Fatalf("expected ErrHelloBadProof for other nonce, got %v", err)
	}
	if err := hello.Verify(authKey, peerNonce, []byte("another session"), time.Now()); !errors.Is(err, ErrHelloBadProof) {
		t.Fatalf("expected ErrHelloBadProof for other session, got %v", err)
	}
	if err := hello.Verify(authKey, peerNonce, binding, time.Now().Add(time.Hour)); !errors.Is(err, ErrHelloStale) {
		t.Fatalf("expected ErrHelloStale, got %v", err)
	}

	tampered := hello
	tampered.Layers = 8
	if err := tampered.Verify(authKey, peerNonce, binding, time.Now()); !errors.Is(err, ErrHelloBadProof) {
		t.Fatalf("expected ErrHelloBadProof for tampered field, got %v", err)
	}

	future := hello
	future.Version = Version + 1
	if err := future.Verify(authKey, peerNonce, binding, time.Now()); !errors.Is(err, ErrHelloVersion) {
		t.Fatalf("expected ErrHelloVersion, got %v", err)
	}
}

func TestDecodeHelloRejectsRole(t *testing.T) {
	if _, err := DecodeHello([]byte(`{"version":1,"role":"observer"}`)); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := DecodeHello([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestHelloCheck(t *testing.T) {
	hello, err := NewHello(RoleClient, nil)
	if err != nil {
		t.Fatalf("NewHello: %v", err)
	}
	if err := hello.Check(time.Now()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	short := hello
	short.Nonce = []byte("tiny")
	if err := short.Check(time.Now()); !errors.Is(err, ErrHelloBadProof) {
		t.Fatalf("expected ErrHelloBadProof for short nonce, got %v", err)
	}
	if err := hello.Check(time.Now().Add(-time.Hour)); !errors.Is(err, ErrHelloStale) {
		t.Fatalf("expected ErrHelloStale, got %v", err)
	}
}

func TestSigningBytesFieldsAreDelimited(t *testing.T) {
	h := Hello{Version: Version, Role: RoleClient, Nonce: []byte("ab")}
	moved := Hello{Version: Version, Role: RoleClient, Nonce: []byte("a")}
	if string(h.SigningBytes([]byte("c"), nil)) == string(moved.SigningBytes([]byte("bc"), nil)) {
		t.Fatalf("nonce bytes must not shift between fields")
	}
}
