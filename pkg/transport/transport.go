// Package transport implements the datagram send/receive boundary: a
// thin, non-blocking-from-the-caller's-view send and a bounded-wait
// receive. The reliability layer above it treats a failed send
// identically to packet loss.
package transport

import "pokeproto-go/internal/model"

// MaxDatagramSize is the largest payload a single datagram may carry.
const MaxDatagramSize = 65507

// Transport is the abstract datagram boundary. Implementations must not
// block receive for longer than roughly the tick duration they were built
// with; this bounded wait is the scheduling tick the reliability layer's
// tick loop relies on.
type Transport interface {
	// Send attempts to deliver data to addr. It returns false (never an
	// error) on any failure, whether an oversized datagram, an OS-level
	// send failure, or a destination the implementation cannot reach, so
	// callers cannot distinguish "lost in flight" from "rejected before
	// leaving this host".
	Send(data []byte, addr model.Addr) bool

	// Receive blocks for up to the implementation's configured tick
	// duration. It returns (nil, model.Addr{}, false) on timeout.
	Receive() (data []byte, from model.Addr, ok bool)

	// Close releases any underlying resources.
	Close() error
}
