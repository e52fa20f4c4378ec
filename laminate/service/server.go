package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/protocol"
	"github.com/TheusHen/laminate/laminate/transport/quic"
	q "github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"
)

var ErrNotListening = errors.New("service: server is not listening")

const (
	closeNormal          q.ApplicationErrorCode = 0
	closeHandshakeFailed q.ApplicationErrorCode = 1
)

// ServerOptions configures a Server. Zero values disable the optional parts.
type ServerOptions struct {
	Logger *slog.Logger
	// Limiter caps requests per remote host.
	Limiter *Limiter
	Metrics *Metrics
	// MetricsAddr, when set, makes Run serve Metrics on /metrics.
	MetricsAddr string
	Transport   quic.Options
	// HandshakeTimeout bounds the Hello exchange. Default 10s.
	HandshakeTimeout time.Duration
}

// Server seals and opens payloads for authenticated clients.
type Server struct {
	cipher *laminate.Cipher
	opts   ServerOptions
	logger *slog.Logger

	mu       sync.Mutex
	listener *quic.Listener
	closed   bool
	conns    map[q.Connection]struct{}
	wg       sync.WaitGroup
}

func NewServer(c *laminate.Cipher, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Server{
		cipher: c,
		opts:   opts,
		logger: opts.Logger,
		conns:  make(map[q.Connection]struct{}),
	}
}

func (s *Server) Listen(addr string) error {
	id, err := quic.DeriveIdentity(s.cipher.InitKey().Bytes())
	if err != nil {
		return err
	}
	ln, err := quic.Listen(addr, id, s.opts.Transport)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("service: listening", "addr", ln.AddrString(), "layers", s.cipher.Layers())
	return nil
}

// Addr is the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.AddrString()
}

// Serve accepts connections until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, q.ErrServerClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			continue
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

// Run serves QUIC and, if configured, the metrics endpoint until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(ctx) })

	if s.opts.MetricsAddr != "" && s.opts.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.opts.Metrics.Handler())
		hs := &http.Server{Addr: s.opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			s.logger.Info("service: metrics listening", "addr", s.opts.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return s.Close()
	})
	return g.Wait()
}

// Close stops accepting, closes every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.closed = true
	conns := make([]q.Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		_ = c.CloseWithError(closeNormal, "server closing")
	}
	s.wg.Wait()
	return err
}

// track registers conn for Close. It refuses, and closes conn, once the
// server is closed; wg is incremented under the same lock so Close never
// waits on a handler it did not see.
func (s *Server) track(conn q.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.CloseWithError(closeNormal, "server closing")
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.opts.Metrics.connOpened()
	return true
}

func (s *Server) untrack(conn q.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	s.opts.Metrics.connClosed()
}

func (s *Server) localHello() (protocol.Hello, error) {
	caps := map[string]string{}
	if lvl := s.cipher.Compression(); lvl != 0 {
		caps["compression"] = lvl.String()
	}
	h, err := protocol.NewHello(protocol.RoleServer, caps)
	if err != nil {
		return protocol.Hello{}, err
	}
	h.Layers = s.cipher.Layers()
	h.Algorithm = s.cipher.Algorithm()
	h.Scheduler = s.cipher.Scheduler().Name()
	h.Fingerprint = s.cipher.InitKey().Fingerprint()
	return h, nil
}

func (s *Server) handleConn(ctx context.Context, conn q.Connection) {
	remote := conn.RemoteAddr().String()
	log := s.logger.With("remote", remote)

	local, err := s.localHello()
	if err != nil {
		log.Error("service: build hello", "error", err)
		_ = conn.CloseWithError(closeHandshakeFailed, "internal error")
		return
	}

	hctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	sess, err := handshakeServer(hctx, conn, s.cipher.InitKey(), local)
	cancel()
	if err != nil {
		log.Warn("service: handshake failed", "error", err)
		_ = conn.CloseWithError(closeHandshakeFailed, "handshake failed")
		return
	}
	log.Debug("service: session established")

	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}

	var streams sync.WaitGroup
	defer streams.Wait()
	for {
		st, err := sess.AcceptStream(ctx)
		if err != nil {
			log.Debug("service: connection done", "error", err)
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			s.serveStream(st, host, log)
		}()
	}
}

// serveStream answers requests on one stream until the client closes it.
func (s *Server) serveStream(st q.Stream, host string, log *slog.Logger) {
	defer st.Close()
	for {
		frame, err := protocol.ReadFrame(st)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("service: stream read", "error", err)
			}
			return
		}
		typ, resp := s.handle(frame, host)
		if err := protocol.WriteMessage(st, typ, resp); err != nil {
			log.Debug("service: stream write", "error", err)
			st.CancelRead(0)
			return
		}
	}
}

// handle runs one request and returns the response message.
func (s *Server) handle(frame protocol.Frame, host string) (protocol.MessageType, any) {
	start := time.Now()
	var (
		op  string
		id  string
		res protocol.Result
		err error
	)

	switch frame.Type {
	case protocol.MessageTypeSeal:
		op = "seal"
		var req protocol.SealRequest
		if err = json.Unmarshal(frame.Payload, &req); err != nil {
			err = fmt.Errorf("%w: %v", ErrBadRequest, err)
			break
		}
		id = req.ID
		if !s.opts.Limiter.Allow(host, start) {
			err = ErrRateLimited
			break
		}
		if len(req.Data) == 0 {
			err = fmt.Errorf("%w: missing data", ErrBadRequest)
			break
		}
		res.Ciphertext, err = s.cipher.Encrypt(req.Data)
	case protocol.MessageTypeOpen:
		op = "open"
		var req protocol.OpenRequest
		if err = json.Unmarshal(frame.Payload, &req); err != nil {
			err = fmt.Errorf("%w: %v", ErrBadRequest, err)
			break
		}
		id = req.ID
		if !s.opts.Limiter.Allow(host, start) {
			err = ErrRateLimited
			break
		}
		var d *laminate.Decrypted
		if d, err = s.cipher.Decrypt(req.Ciphertext); err == nil {
			res.Payload, res.Signature = d.Payload, d.Signature
		}
	default:
		op = "unknown"
		err = fmt.Errorf("%w: message type %s", ErrBadRequest, frame.Type)
	}

	if err != nil {
		code := codeFor(err)
		s.opts.Metrics.observe(op, code, time.Since(start))
		s.logger.Debug("service: request failed", "op", op, "request_id", id, "code", code, "error", err)
		return protocol.MessageTypeError, protocol.ErrorMessage{ID: id, Code: code, Message: err.Error()}
	}
	s.opts.Metrics.observe(op, "ok", time.Since(start))
	res.ID = id
	return protocol.MessageTypeResult, res
}
