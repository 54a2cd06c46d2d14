// Package reliability implements the retransmission layer: every
// sequence-stamped outbound message is retried until ACKed or until
// retries are exhausted, and every inbound sequenced message is ACKed
// exactly once.
//
// This package does not understand game logic, state transitions, or
// battle flow; it only ensures messages eventually arrive or the session
// fails.
package reliability

import (
	"fmt"
	"sync"
	"time"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/metrics"
	"pokeproto-go/pkg/transport"
)

const (
	// DefaultTimeout is the per-attempt retransmission wait.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultMaxRetries is the retransmission budget before giving up.
	DefaultMaxRetries = 3
)

// ReliabilityError is raised when a pending record exceeds MaxRetries
// without an ACK; it is fatal to the session.
type ReliabilityError struct {
	Sequence uint64
	Dest     model.Addr
}

func (e *ReliabilityError) Error() string {
	return fmt.Sprintf("reliability: message seq %d to %s exceeded max retries; peer appears unresponsive", e.Sequence, e.Dest)
}

type pendingKey struct {
	seq  uint64
	dest model.Addr
}

type pendingRecord struct {
	data       []byte
	lastSentAt time.Time
	retries    int
}

// Layer is a session-private reliability layer: one shared monotonic
// sequence counter, and a pending-record map keyed by (sequenceNumber,
// destAddr) so host fan-out to multiple spectators doesn't alias ACKs.
type Layer struct {
	Timeout    time.Duration
	MaxRetries int

	mu      sync.Mutex
	seq     uint64
	pending map[pendingKey]*pendingRecord

	metrics *metrics.Registry
}

// New builds a Layer with the default timeout and retry budget.
// Pass a nil metrics.Registry to run without instrumentation.
func New(reg *metrics.Registry) *Layer {
	return &Layer{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		pending:    make(map[pendingKey]*pendingRecord),
		metrics:    reg,
	}
}

// NextSequenceNumber returns the next value in the shared sequence space
// and advances the local counter.
func (l *Layer) NextSequenceNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// SendReliable stamps fields with a fresh sequence_number, encodes, sends,
// and tracks the datagram for retransmission until ACKed.
func (l *Layer) SendReliable(tr transport.Transport, fields codec.Fields, addr model.Addr) (ok bool, seq uint64) {
	seq = l.NextSequenceNumber()
	fields["sequence_number"] = fmt.Sprintf("%d", seq)
	data := codec.Encode(fields)

	ok = tr.Send(data, addr)
	l.metrics.IncSent()

	l.mu.Lock()
	l.pending[pendingKey{seq: seq, dest: addr}] = &pendingRecord{data: data, lastSentAt: time.Now()}
	l.mu.Unlock()

	return ok, seq
}

// SendReliableToMany assigns a single sequence number and sends the same
// encoded message to every destination, tracking a separate pending record
// per destination under that one sequence number. Used by the host to fan
// a message out to every spectator.
func (l *Layer) SendReliableToMany(tr transport.Transport, fields codec.Fields, addrs []model.Addr) (aggregateOK bool, seq uint64) {
	seq = l.NextSequenceNumber()
	fields["sequence_number"] = fmt.Sprintf("%d", seq)
	data := codec.Encode(fields)

	aggregateOK = true
	now := time.Now()

	l.mu.Lock()
	for _, addr := range addrs {
		ok := tr.Send(data, addr)
		l.metrics.IncSent()
		if !ok {
			aggregateOK = false
		}
		l.pending[pendingKey{seq: seq, dest: addr}] = &pendingRecord{data: data, lastSentAt: now}
	}
	l.mu.Unlock()

	return aggregateOK, seq
}

// SendUnreliable encodes and sends fields without sequence tracking, used
// for ACK datagrams themselves (never sequenced, never tracked).
func (l *Layer) SendUnreliable(tr transport.Transport, fields codec.Fields, addr model.Addr) bool {
	ok := tr.Send(codec.Encode(fields), addr)
	l.metrics.IncSent()
	return ok
}

// HandleAck removes the matching pending record for (ackNumber, from), if
// any. Re-delivery of the same ACK is a no-op since the map entry is
// already gone.
func (l *Layer) HandleAck(ackNumber uint64, from model.Addr) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, pendingKey{seq: ackNumber, dest: from})
}

// ObserveIncoming is called by the state machine for every decoded inbound
// message. If it carries a sequence_number, the local sequence counter is
// raised to align with the remote's, and an ACK is emitted to the sender. Returns the parsed sequence number, if any.
func (l *Layer) ObserveIncoming(tr transport.Transport, fields codec.Fields, from model.Addr) (seq uint64, hadSeq bool) {
	if _, present := fields["sequence_number"]; !present {
		return 0, false
	}

	n, err := codec.ParseIntField(fields, "sequence_number")
	if err != nil {
		return 0, false
	}
	seq = uint64(n)

	l.mu.Lock()
	if seq > l.seq {
		l.seq = seq
	}
	l.mu.Unlock()

	l.sendAck(tr, seq, from)
	return seq, true
}

func (l *Layer) sendAck(tr transport.Transport, seq uint64, to model.Addr) {
	ack := codec.Fields{
		"message_type": "ACK",
		"ack_number":   fmt.Sprintf("%d", seq),
	}
	tr.Send(codec.Encode(ack), to)
	l.metrics.IncAck()
}

// Tick scans every pending record; any whose last send exceeds Timeout is
// either retransmitted (incrementing its retry count) or, if it has
// already exhausted MaxRetries, raises a ReliabilityError. Scan order is
// unspecified.
func (l *Layer) Tick(tr transport.Transport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, rec := range l.pending {
		if now.Sub(rec.lastSentAt) <= l.Timeout {
			continue
		}

		if rec.retries >= l.MaxRetries {
			l.metrics.IncExhausted()
			return &ReliabilityError{Sequence: key.seq, Dest: key.dest}
		}

		tr.Send(rec.data, key.dest)
		l.metrics.IncSent()
		l.metrics.IncRetransmission()
		rec.lastSentAt = now
		rec.retries++
	}

	return nil
}

// PendingCount reports how many records are still awaiting ACK, primarily
// for tests.
func (l *Layer) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
