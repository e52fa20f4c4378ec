// Package quic wraps quic-go with the TLS and connection settings used by the
// sealing service.
package quic

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	q "github.com/quic-go/quic-go"
)

const (
	DefaultIdleTimeout = 30 * time.Second
	DefaultKeepAlive   = 10 * time.Second

	bindingLabel = "laminate-hello"
	BindingSize  = 32
)

// Options tunes the QUIC connection. Zero values select the defaults.
type Options struct {
	IdleTimeout time.Duration
	KeepAlive   time.Duration
}

func (o Options) config() *q.Config {
	idle := o.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if keepAlive >= idle {
		keepAlive = idle / 2
	}
	return &q.Config{
		MaxIdleTimeout:  idle,
		KeepAlivePeriod: keepAlive,
	}
}

type Listener struct {
	inner *q.Listener
}

// Listen serves TLS with the certificate of id.
func Listen(addr string, id *Identity, opts Options) (*Listener, error) {
	tlsConf, err := NewServerTLSConfig(id)
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, opts.config())
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln}, nil
}

func (l *Listener) Accept(ctx context.Context) (q.Connection, error) {
	return l.inner.Accept(ctx)
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) AddrString() string {
	if l.inner == nil {
		return ""
	}
	return l.inner.Addr().String()
}

func (l *Listener) Close() error { return l.inner.Close() }

// Dial connects to addr and requires the server certificate to carry pin.
// A pin failure is reported as ErrPeerKeyMismatch.
func Dial(ctx context.Context, addr string, pin ed25519.PublicKey, opts Options) (q.Connection, error) {
	var mismatch atomic.Bool
	tlsConf, err := NewClientTLSConfig(pin, func() { mismatch.Store(true) })
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, addr, tlsConf, opts.config())
	if err != nil {
		if mismatch.Load() {
			return nil, fmt.Errorf("%w: %w", ErrPeerKeyMismatch, err)
		}
		return nil, err
	}
	return conn, nil
}

// SessionBinding exports keying material unique to the TLS session of conn.
// Proofs covering it cannot be replayed on another connection.
func SessionBinding(conn q.Connection) ([]byte, error) {
	state := conn.ConnectionState().TLS
	return state.ExportKeyingMaterial(bindingLabel, nil, BindingSize)
}
