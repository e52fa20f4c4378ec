package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TheusHen/laminate/laminate/mac"
)

const (
	// Version is the protocol version spoken by this package.
	Version = 1

	RoleClient = "client"
	RoleServer = "server"

	// MaxClockSkew bounds how far a Hello timestamp may drift from local time.
	MaxClockSkew = 5 * time.Minute

	NonceSize    = 32
	MinNonceSize = 16
)

var (
	ErrHelloBadProof    = errors.New("protocol: hello proof does not verify")
	ErrHelloVersion     = errors.New("protocol: unsupported protocol version")
	ErrHelloStale       = errors.New("protocol: hello timestamp outside allowed skew")
	ErrHelloFingerprint = errors.New("protocol: peer uses a different key")
)

// Hello opens a session. Both peers prove possession of the shared key by
// tagging SigningBytes with a keyed hash under a key derived from it. Each
// proof covers the other side's nonce and the TLS session, so a recorded
// Hello is useless on any other connection.
type Hello struct {
	Version      int               `json:"version"`
	Role         string            `json:"role"`
	Layers       int               `json:"layers"`
	Algorithm    string            `json:"algorithm"`
	Scheduler    string            `json:"scheduler"`
	Fingerprint  string            `json:"fingerprint"`
	TimestampSec int64             `json:"timestamp_sec"`
	Nonce        []byte            `json:"nonce"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
	Proof        string            `json:"proof"`
}

// NewHello fills in version, timestamp and a fresh nonce.
func NewHello(role string, capabilities map[string]string) (Hello, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Hello{}, err
	}
	capsCopy := map[string]string{}
	for k, v := range capabilities {
		capsCopy[k] = v
	}
	return Hello{
		Version:      Version,
		Role:         role,
		TimestampSec: time.Now().Unix(),
		Nonce:        nonce,
		Capabilities: capsCopy,
	}, nil
}

func writeString(b *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	b.Write(l[:])
	b.WriteString(s)
}

func writeBytes(b *bytes.Buffer, p []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(p)))
	b.Write(l[:])
	b.Write(p)
}

// SigningBytes is the canonical encoding covered by Proof. peerNonce binds the
// proof to the other side's Hello and binding to one transport session.
func (h Hello) SigningBytes(peerNonce, binding []byte) []byte {
	var b bytes.Buffer
	b.WriteString("laminate-hello")
	var u [8]byte
	binary.BigEndian.PutUint64(u[:], uint64(h.Version))
	b.Write(u[:])
	writeString(&b, h.Role)
	binary.BigEndian.PutUint64(u[:], uint64(h.Layers))
	b.Write(u[:])
	writeString(&b, h.Algorithm)
	writeString(&b, h.Scheduler)
	writeString(&b, h.Fingerprint)
	binary.BigEndian.PutUint64(u[:], uint64(h.TimestampSec))
	b.Write(u[:])
	writeBytes(&b, h.Nonce)
	writeBytes(&b, peerNonce)
	writeBytes(&b, binding)

	keys := make([]string, 0, len(h.Capabilities))
	for k := range h.Capabilities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeString(&b, k)
		writeString(&b, h.Capabilities[k])
	}
	return b.Bytes()
}

// Sign sets Proof.
func (h *Hello) Sign(authKey string, peerNonce, binding []byte) {
	h.Proof = mac.SumBytes(h.SigningBytes(peerNonce, binding), authKey)
}

// Check validates version and timestamp skew without looking at Proof.
func (h Hello) Check(now time.Time) error {
	if h.Version != Version {
		return fmt.Errorf("%w: %d", ErrHelloVersion, h.Version)
	}
	skew := now.Sub(time.Unix(h.TimestampSec, 0))
	if skew < -MaxClockSkew || skew > MaxClockSkew {
		return fmt.Errorf("%w: %s", ErrHelloStale, skew)
	}
	if len(h.Nonce) < MinNonceSize {
		return fmt.Errorf("%w: nonce too short", ErrHelloBadProof)
	}
	return nil
}

// Verify runs Check and then verifies Proof.
func (h Hello) Verify(authKey string, peerNonce, binding []byte, now time.Time) error {
	if err := h.Check(now); err != nil {
		return err
	}
	if !mac.Equal(mac.SumBytes(h.SigningBytes(peerNonce, binding), authKey), h.Proof) {
		return ErrHelloBadProof
	}
	return nil
}

func EncodeHello(h Hello) ([]byte, error) {
	return json.Marshal(h)
}

func DecodeHello(b []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return Hello{}, err
	}
	if h.Role != RoleClient && h.Role != RoleServer {
		return Hello{}, fmt.Errorf("protocol: hello has unknown role %q", h.Role)
	}
	return h, nil
}
