// Package pskb contains the packet buffer consumed by the receive window.
//
// A [Buffer] owns the raw bytes of a single ODATA or RDATA packet
// and exposes the header fields the window needs:
// sequence number, advertised trail, declared TSDU length,
// the optional fragment option and the parity flag.
//
// Buffers are reference counted.
// The window never copies packet bytes;
// it only holds and releases references.
package pskb
