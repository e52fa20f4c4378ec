package quic

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	ALPN = "laminate/1"

	identityInfo = "laminate-tls"
)

var (
	ErrEmptySecret       = errors.New("quic: identity secret is empty")
	ErrPeerKeyMismatch   = errors.New("quic: server certificate does not belong to the sealing key")
	ErrNoPeerCertificate = errors.New("quic: server sent no certificate")
)

// Identity is the server's TLS key pair. Both sides derive it from the
// sealing key, so a client can pin the server without any PKI.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// DeriveIdentity expands secret with HKDF-SHA256 into an Ed25519 seed. The same
// secret always yields the same identity.
func DeriveIdentity(secret []byte) (*Identity, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(identityInfo)), seed); err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (id *Identity) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), id.pub...)
}

func (id *Identity) certificate() (tls.Certificate, error) {
	sum := sha256.Sum256(id.pub)
	tpl := x509.Certificate{
		SerialNumber: new(big.Int).SetBytes(sum[:8]),
		Subject: pkix.Name{
			CommonName: "laminate",
		},
		NotBefore: time.Now().Add(-1 * time.Hour),
		NotAfter:  time.Now().Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, id.pub, id.priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: id.priv}, nil
}

// NewServerTLSConfig presents a certificate for id.
func NewServerTLSConfig(id *Identity) (*tls.Config, error) {
	cert, err := id.certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{ALPN},
	}, nil
}

// NewClientTLSConfig accepts only a server whose certificate carries pin and
// is validly self-signed by it. onMismatch, if set, runs when the pin fails.
func NewClientTLSConfig(pin ed25519.PublicKey, onMismatch func()) (*tls.Config, error) {
	if len(pin) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("quic: pinned key has %d bytes", len(pin))
	}
	pin = append(ed25519.PublicKey(nil), pin...)
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		NextProtos: []string{ALPN},
		// Chain building is replaced by the pin check below.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			err := verifyPinned(rawCerts, pin)
			if err != nil && onMismatch != nil {
				onMismatch()
			}
			return err
		},
	}, nil
}

func verifyPinned(rawCerts [][]byte, pin ed25519.PublicKey) error {
	if len(rawCerts) == 0 {
		return ErrNoPeerCertificate
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPeerKeyMismatch, err)
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok || !bytes.Equal(pub, pin) {
		return ErrPeerKeyMismatch
	}
	// Self-signed leaf: CheckSignatureFrom would demand a CA.
	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return fmt.Errorf("%w: %w", ErrPeerKeyMismatch, err)
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return fmt.Errorf("%w: certificate expired", ErrPeerKeyMismatch)
	}
	return nil
}
