package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/protocol"
	"github.com/TheusHen/laminate/laminate/transport/quic"
	q "github.com/quic-go/quic-go"
)

func dialRaw(ctx context.Context, t *testing.T, srv *Server) q.Connection {
	t.Helper()
	id, err := quic.DeriveIdentity([]byte(testKey))
	if err != nil {
		t.Fatalf("DeriveIdentity: %v", err)
	}
	conn, err := quic.Dial(ctx, srv.Addr(), id.PublicKey(), quic.Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseWithError(0, "") })
	return conn
}

// openRaw sends one Open request on a new stream of conn.
func openRaw(ctx context.Context, conn q.Connection, ciphertext string) (protocol.Result, error) {
	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return protocol.Result{}, err
	}
	defer st.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}
	if err := protocol.WriteMessage(st, protocol.MessageTypeOpen, protocol.OpenRequest{ID: "r1", Ciphertext: ciphertext}); err != nil {
		return protocol.Result{}, err
	}
	frame, err := protocol.ReadFrame(st)
	if err != nil {
		return protocol.Result{}, err
	}
	var res protocol.Result
	if err := frame.Decode(protocol.MessageTypeResult, &res); err != nil {
		return protocol.Result{}, err
	}
	return res, nil
}

func TestReplayedHelloRejected(t *testing.T) {
	srv := startServer(t, ServerOptions{})
	key := clientKey(t, testKey)
	authKey, err := AuthKey(key)
	if err != nil {
		t.Fatalf("AuthKey: %v", err)
	}
	c, err := laminate.New(laminate.Config{Key: testKey})
	if err != nil {
		t.Fatalf("laminate.New: %v", err)
	}
	secret, err := c.Encrypt(map[string]string{"card": "4111-1111"})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A complete exchange by a key holder, recorded.
	conn := dialRaw(ctx, t, srv)
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("OpenStreamSync: %v", err)
	}
	offer, err := protocol.NewHello(protocol.RoleClient, nil)
	if err != nil {
		t.Fatalf("NewHello: %v", err)
	}
	offer.Fingerprint = key.Fingerprint()
	if err := writeHello(control, offer); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	first, err := readHello(ctx, control)
	if err != nil {
		t.Fatalf("readHello: %v", err)
	}
	binding, err := quic.SessionBinding(conn)
	if err != nil {
		t.Fatalf("SessionBinding: %v", err)
	}
	proof := offer
	proof.Sign(authKey, first.Nonce, binding)
	if err := writeHello(control, proof); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	if _, err := openRaw(ctx, conn, secret); err != nil {
		t.Fatalf("recorded session: %v", err)
	}

	// The same two client messages on a connection that never held the key.
	replay := dialRaw(ctx, t, srv)
	control2, err := replay.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("OpenStreamSync: %v", err)
	}
	if err := writeHello(control2, offer); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	second, err := readHello(ctx, control2)
	if err != nil {
		t.Fatalf("readHello: %v", err)
	}
	if bytes.Equal(second.Nonce, first.Nonce) {
		t.Fatalf("server must issue a fresh nonce per connection")
	}
	if err := writeHello(control2, proof); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	if res, err := openRaw(ctx, replay, secret); err == nil {
		t.Fatalf("replayed handshake opened %s", res.Payload)
	}
}

func TestHandshakeRequiresProof(t *testing.T) {
	srv := startServer(t, ServerOptions{})
	key := clientKey(t, testKey)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dialRaw(ctx, t, srv)
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("OpenStreamSync: %v", err)
	}
	offer, err := protocol.NewHello(protocol.RoleClient, nil)
	if err != nil {
		t.Fatalf("NewHello: %v", err)
	}
	offer.Fingerprint = key.Fingerprint()
	if err := writeHello(control, offer); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	if _, err := readHello(ctx, control); err != nil {
		t.Fatalf("readHello: %v", err)
	}
	// Resend the unsigned offer as the answer.
	if err := writeHello(control, offer); err != nil {
		t.Fatalf("writeHello: %v", err)
	}
	if _, err := openRaw(ctx, conn, "anything"); err == nil {
		t.Fatalf("unsigned offer must not open a session")
	}
}

func TestWrongKeyFailsAtTLS(t *testing.T) {
	srv := startServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := Dial(ctx, srv.Addr(), clientKey(t, "abcdefghabcdefghabcdefghabcdefgh"), ClientOptions{Logger: quietLogger})
	if !errors.Is(err, ErrHandshake) || !errors.Is(err, quic.ErrPeerKeyMismatch) {
		t.Fatalf("expected ErrHandshake wrapping ErrPeerKeyMismatch, got %v", err)
	}
}

func TestTrackAfterCloseRefuses(t *testing.T) {
	c, err := laminate.New(laminate.Config{Key: testKey})
	if err != nil {
		t.Fatalf("laminate.New: %v", err)
	}
	srv := NewServer(c, ServerOptions{Logger: quietLogger, Metrics: NewMetrics()})
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	id, err := quic.DeriveIdentity([]byte(testKey))
	if err != nil {
		t.Fatalf("DeriveIdentity: %v", err)
	}
	ln, err := quic.Listen("127.0.0.1:0", id, quic.Options{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	accepted := make(chan q.Connection, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err == nil {
			accepted <- conn
		}
	}()
	client, err := quic.Dial(ctx, ln.AddrString(), id.PublicKey(), quic.Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.CloseWithError(0, "")

	var conn q.Connection
	select {
	case conn = <-accepted:
	case <-ctx.Done():
		t.Fatalf("Accept: %v", ctx.Err())
	}

	if srv.track(conn) {
		t.Fatalf("track must refuse connections after Close")
	}
	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		t.Fatalf("refused connection was not closed")
	}
	srv.mu.Lock()
	n := len(srv.conns)
	srv.mu.Unlock()
	if n != 0 {
		t.Fatalf("refused connection must not be registered, have %d", n)
	}
}
