// Package protocol defines the wire format of the remote sealing service.
//
// Every message travels in a Frame (type byte, big-endian length, payload) on
// a QUIC stream. The first stream of a connection carries the Hello exchange;
// each later stream carries request/response pairs with JSON payloads.
package protocol
