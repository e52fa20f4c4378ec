package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/protocol"
	"github.com/TheusHen/laminate/laminate/round"
	"github.com/TheusHen/laminate/laminate/transport/quic"
	"github.com/google/uuid"
	q "github.com/quic-go/quic-go"
)

// ClientOptions configures Dial.
type ClientOptions struct {
	Logger    *slog.Logger
	Transport quic.Options
	// MaxStreams bounds concurrent requests. Default 8.
	MaxStreams   int
	Capabilities map[string]string
}

// Client talks to a Server. It is safe for concurrent use.
type Client struct {
	sess   *Session
	pool   *StreamPool
	logger *slog.Logger
}

// Dial connects to addr and authenticates with key, which must be the
// server's key. The server certificate is pinned to an identity derived from
// key; a server holding another key fails with ErrHandshake.
func Dial(ctx context.Context, addr string, key *keymaterial.Key, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := key.AssertValidity(); err != nil {
		return nil, err
	}
	id, err := quic.DeriveIdentity(key.Bytes())
	if err != nil {
		return nil, err
	}
	conn, err := quic.Dial(ctx, addr, id.PublicKey(), opts.Transport)
	if err != nil {
		if errors.Is(err, quic.ErrPeerKeyMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		return nil, err
	}
	sess, err := handshakeClient(ctx, conn, key, opts.Capabilities)
	if err != nil {
		_ = conn.CloseWithError(closeHandshakeFailed, "handshake failed")
		return nil, err
	}
	opts.Logger.Debug("service: connected",
		"addr", addr,
		"layers", sess.remote.Layers,
		"scheduler", sess.remote.Scheduler)

	return &Client{
		sess:   sess,
		pool:   NewStreamPool(sess, opts.MaxStreams),
		logger: opts.Logger,
	}, nil
}

// Remote returns the server's Hello.
func (c *Client) Remote() protocol.Hello { return c.sess.RemoteHello() }

// Seal asks the server to encrypt v.
func (c *Client) Seal(ctx context.Context, v any) (string, error) {
	data, err := round.Serialize(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", laminate.ErrSerialization, err)
	}
	id := uuid.NewString()
	res, err := c.roundTrip(ctx, id, protocol.MessageTypeSeal, protocol.SealRequest{ID: id, Data: data})
	if err != nil {
		return "", err
	}
	return res.Ciphertext, nil
}

// Open asks the server to decrypt ciphertext.
func (c *Client) Open(ctx context.Context, ciphertext string) (*laminate.Decrypted, error) {
	id := uuid.NewString()
	res, err := c.roundTrip(ctx, id, protocol.MessageTypeOpen, protocol.OpenRequest{ID: id, Ciphertext: ciphertext})
	if err != nil {
		return nil, err
	}
	return &laminate.Decrypted{Payload: res.Payload, Signature: res.Signature}, nil
}

func (c *Client) roundTrip(ctx context.Context, id string, typ protocol.MessageType, req any) (protocol.Result, error) {
	st, err := c.pool.Acquire(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	// Unblock I/O when ctx ends; the stream is then discarded below.
	stop := context.AfterFunc(ctx, func() { _ = st.SetDeadline(time.Now()) })
	res, err := exchange(st, id, typ, req)
	var remote remoteError
	isRemote := errors.As(err, &remote)

	switch {
	case !stop():
		c.discard(st)
		if err != nil && !isRemote {
			return protocol.Result{}, ctx.Err()
		}
	case err != nil && !isRemote:
		c.discard(st)
		return protocol.Result{}, err
	default:
		c.pool.Release(st)
	}
	if isRemote {
		return protocol.Result{}, remote.err
	}
	return res, nil
}

type remoteError struct{ err error }

func (e remoteError) Error() string { return e.err.Error() }

func (e remoteError) Unwrap() error { return e.err }

// exchange writes one request and reads its response. Errors reported by the
// server come back as remoteError; the stream stays usable after them.
func exchange(st Stream, id string, typ protocol.MessageType, req any) (protocol.Result, error) {
	if err := protocol.WriteMessage(st, typ, req); err != nil {
		return protocol.Result{}, err
	}
	frame, err := protocol.ReadFrame(st)
	if err != nil {
		return protocol.Result{}, err
	}

	switch frame.Type {
	case protocol.MessageTypeResult:
		var res protocol.Result
		if err := json.Unmarshal(frame.Payload, &res); err != nil {
			return protocol.Result{}, err
		}
		if res.ID != id {
			return protocol.Result{}, fmt.Errorf("%w: %q", ErrIDMismatch, res.ID)
		}
		return res, nil
	case protocol.MessageTypeError:
		var m protocol.ErrorMessage
		if err := json.Unmarshal(frame.Payload, &m); err != nil {
			return protocol.Result{}, err
		}
		return protocol.Result{}, remoteError{errorFor(m)}
	default:
		return protocol.Result{}, fmt.Errorf("%w: %s", protocol.ErrUnexpected, frame.Type)
	}
}

func (c *Client) discard(st Stream) {
	if qs, ok := st.(q.Stream); ok {
		qs.CancelRead(0)
	}
	c.pool.Discard(st)
}

// Close releases all streams and closes the connection.
func (c *Client) Close() error {
	_ = c.pool.Close()
	return c.sess.CloseWithError(closeNormal, "")
}
