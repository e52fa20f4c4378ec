package quic

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	q "github.com/quic-go/quic-go"
)

func testIdentity(t *testing.T, secret string) *Identity {
	t.Helper()
	id, err := DeriveIdentity([]byte(secret))
	if err != nil {
		t.Fatalf("DeriveIdentity: %v", err)
	}
	return id
}

func TestDialAccept(t *testing.T) {
	id := testIdentity(t, "sealing key")
	ln, err := Listen("127.0.0.1:0", id, Options{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		st, err := conn.AcceptStream(ctx)
		if err != nil {
			done <- err
			return
		}
		if _, err := io.Copy(st, st); err != nil {
			done <- err
			return
		}
		done <- st.Close()
	}()

	conn, err := Dial(ctx, ln.AddrString(), id.PublicKey(), Options{IdleTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseWithError(0, "")

	if got := conn.ConnectionState().TLS.NegotiatedProtocol; got != ALPN {
		t.Fatalf("negotiated %q, want %q", got, ALPN)
	}

	st, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("OpenStreamSync: %v", err)
	}
	if _, err := st.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = st.Close()

	buf, err := io.ReadAll(st)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("echo mismatch: %q", buf)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestOptionsConfig(t *testing.T) {
	c := Options{IdleTimeout: 4 * time.Second, KeepAlive: time.Minute}.config()
	if c.KeepAlivePeriod >= c.MaxIdleTimeout {
		t.Fatalf("keepalive %v must be below idle timeout %v", c.KeepAlivePeriod, c.MaxIdleTimeout)
	}
	d := Options{}.config()
	if d.MaxIdleTimeout != DefaultIdleTimeout || d.KeepAlivePeriod != DefaultKeepAlive {
		t.Fatalf("unexpected defaults %v/%v", d.MaxIdleTimeout, d.KeepAlivePeriod)
	}
}

func TestDeriveIdentity(t *testing.T) {
	a := testIdentity(t, "sealing key")
	b := testIdentity(t, "sealing key")
	c := testIdentity(t, "other key")
	if !bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Fatalf("identity must be deterministic")
	}
	if bytes.Equal(a.PublicKey(), c.PublicKey()) {
		t.Fatalf("different secrets must give different identities")
	}
	if _, err := DeriveIdentity(nil); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestDialRejectsWrongPin(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", testIdentity(t, "sealing key"), Options{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		// Accept keeps the listener draining; the handshake never completes.
		_, _ = ln.Accept(ctx)
	}()

	_, err = Dial(ctx, ln.AddrString(), testIdentity(t, "other key").PublicKey(), Options{})
	if !errors.Is(err, ErrPeerKeyMismatch) {
		t.Fatalf("expected ErrPeerKeyMismatch, got %v", err)
	}
}

func TestSessionBinding(t *testing.T) {
	id := testIdentity(t, "sealing key")
	ln, err := Listen("127.0.0.1:0", id, Options{})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan q.Connection, 2)
	go func() {
		for i := 0; i < 2; i++ {
			conn, err := ln.Accept(ctx)
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	var bindings [][]byte
	for i := 0; i < 2; i++ {
		conn, err := Dial(ctx, ln.AddrString(), id.PublicKey(), Options{})
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		defer conn.CloseWithError(0, "")

		var server q.Connection
		select {
		case server = <-accepted:
		case <-ctx.Done():
			t.Fatalf("Accept: %v", ctx.Err())
		}

		cb, err := SessionBinding(conn)
		if err != nil {
			t.Fatalf("SessionBinding client: %v", err)
		}
		sb, err := SessionBinding(server)
		if err != nil {
			t.Fatalf("SessionBinding server: %v", err)
		}
		if !bytes.Equal(cb, sb) || len(cb) != BindingSize {
			t.Fatalf("both ends must export the same %d bytes", BindingSize)
		}
		bindings = append(bindings, cb)
	}
	if bytes.Equal(bindings[0], bindings[1]) {
		t.Fatalf("bindings must differ across connections")
	}
}
