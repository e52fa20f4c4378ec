package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/protocol"
	"github.com/TheusHen/laminate/laminate/transport/quic"
	q "github.com/quic-go/quic-go"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrHandshake              = errors.New("service: handshake failed")
	ErrHandshakeExpectedHello = errors.New("service: handshake expected HELLO")
)

const helloAuthInfo = "laminate-hello-auth"

// AuthKey derives the Hello proof key from the shared key. It never equals
// any round key.
func AuthKey(key *keymaterial.Key) (string, error) {
	if err := key.AssertValidity(); err != nil {
		return "", err
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, key.Bytes(), nil, []byte(helloAuthInfo))
	if _, err := io.ReadFull(r, out); err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

// Session is a QUIC connection whose peer proved possession of the key.
type Session struct {
	conn      q.Connection
	control   q.Stream
	controlID q.StreamID
	remote    protocol.Hello
}

func (s *Session) Connection() q.Connection { return s.conn }

func (s *Session) RemoteHello() protocol.Hello { return s.remote }

// OpenStream opens an application data stream.
func (s *Session) OpenStream(ctx context.Context) (Stream, error) {
	return s.conn.OpenStreamSync(ctx)
}

// AcceptStream accepts an application data stream, skipping the control stream.
func (s *Session) AcceptStream(ctx context.Context) (q.Stream, error) {
	for {
		st, err := s.conn.AcceptStream(ctx)
		if err != nil {
			return nil, err
		}
		if st.StreamID() == s.controlID {
			_ = st.Close()
			continue
		}
		return st, nil
	}
}

func (s *Session) CloseWithError(code q.ApplicationErrorCode, msg string) error {
	return s.conn.CloseWithError(code, msg)
}

func readHello(ctx context.Context, st q.Stream) (protocol.Hello, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetReadDeadline(deadline)
		defer st.SetReadDeadline(time.Time{})
	}
	frame, err := protocol.ReadFrame(st)
	if err != nil {
		return protocol.Hello{}, err
	}
	if frame.Type != protocol.MessageTypeHello {
		return protocol.Hello{}, ErrHandshakeExpectedHello
	}
	return protocol.DecodeHello(frame.Payload)
}

func writeHello(st q.Stream, h protocol.Hello) error {
	payload, err := protocol.EncodeHello(h)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(st, protocol.Frame{Type: protocol.MessageTypeHello, Payload: payload})
}

// handshakeClient runs the client side of the three-message handshake on a
// new control stream:
//
//	client -> server  Hello (offer, unsigned)
//	server -> client  Hello signed over the client nonce
//	client -> server  the offer, now signed over the server nonce
//
// Both proofs also cover the TLS session binding.
func handshakeClient(ctx context.Context, conn q.Connection, key *keymaterial.Key, caps map[string]string) (*Session, error) {
	authKey, err := AuthKey(key)
	if err != nil {
		return nil, err
	}
	binding, err := quic.SessionBinding(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}

	local, err := protocol.NewHello(protocol.RoleClient, caps)
	if err != nil {
		return nil, err
	}
	local.Fingerprint = key.Fingerprint()
	if err := writeHello(control, local); err != nil {
		return nil, err
	}

	remote, err := readHello(ctx, control)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if remote.Role != protocol.RoleServer {
		return nil, fmt.Errorf("%w: peer role %q", ErrHandshake, remote.Role)
	}
	if remote.Fingerprint != local.Fingerprint {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, protocol.ErrHelloFingerprint)
	}
	if err := remote.Verify(authKey, local.Nonce, binding, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	local.Sign(authKey, remote.Nonce, binding)
	if err := writeHello(control, local); err != nil {
		return nil, err
	}

	return &Session{conn: conn, control: control, controlID: control.StreamID(), remote: remote}, nil
}

// handshakeServer is the server side of handshakeClient. The client's proof
// must cover the nonce sent in local, so a recorded exchange never verifies
// again.
func handshakeServer(ctx context.Context, conn q.Connection, key *keymaterial.Key, local protocol.Hello) (*Session, error) {
	authKey, err := AuthKey(key)
	if err != nil {
		return nil, err
	}
	binding, err := quic.SessionBinding(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	control, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}

	offer, err := readHello(ctx, control)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if offer.Role != protocol.RoleClient {
		return nil, fmt.Errorf("%w: peer role %q", ErrHandshake, offer.Role)
	}
	if offer.Fingerprint != key.Fingerprint() {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, protocol.ErrHelloFingerprint)
	}
	if err := offer.Check(time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	local.Sign(authKey, offer.Nonce, binding)
	if err := writeHello(control, local); err != nil {
		return nil, err
	}

	remote, err := readHello(ctx, control)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if remote.Role != protocol.RoleClient || !bytes.Equal(remote.Nonce, offer.Nonce) {
		return nil, fmt.Errorf("%w: proof does not answer the offer", ErrHandshake)
	}
	if err := remote.Verify(authKey, local.Nonce, binding, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	return &Session{conn: conn, control: control, controlID: control.StreamID(), remote: remote}, nil
}
