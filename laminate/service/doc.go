// Package service exposes a laminate Cipher over QUIC.
//
// A client pins the server certificate to an identity derived from the shared
// key, proves possession of the key in a three-message Hello exchange on the
// first stream, then sends Seal and Open requests on pooled data streams. The server applies a per-peer rate limit and records
// Prometheus metrics for every request.
package service
