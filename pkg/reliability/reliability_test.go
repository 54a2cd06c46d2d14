package reliability

import (
	"errors"
	"testing"
	"time"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
)

// fakeTransport records every send so tests can assert on it without a
// real socket.
type fakeTransport struct {
	sent []sentDatagram
	drop map[int]bool // not consulted by Send: every call is recorded
}

type sentDatagram struct {
	data []byte
	addr model.Addr
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{drop: make(map[int]bool)}
}

func (f *fakeTransport) Send(data []byte, addr model.Addr) bool {
	f.sent = append(f.sent, sentDatagram{data: data, addr: addr})
	return true
}

func (f *fakeTransport) Receive() ([]byte, model.Addr, bool) { return nil, model.Addr{}, false }
func (f *fakeTransport) Close() error                        { return nil }

func TestSendReliableTracksPending(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	addr := model.Addr{IP: "127.0.0.1", Port: 9000}

	ok, seq := l.SendReliable(tr, codec.Fields{"message_type": "HANDSHAKE_REQUEST"}, addr)
	if !ok {
		t.Fatal("SendReliable returned ok=false")
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
	if l.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", l.PendingCount())
	}
}

func TestHandleAckRemovesPending(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	addr := model.Addr{IP: "127.0.0.1", Port: 9000}

	_, seq := l.SendReliable(tr, codec.Fields{"message_type": "HANDSHAKE_REQUEST"}, addr)
	l.HandleAck(seq, addr)

	if l.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0 after ACK", l.PendingCount())
	}
}

func TestHandleAckIgnoresWrongAddress(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	addr := model.Addr{IP: "127.0.0.1", Port: 9000}
	other := model.Addr{IP: "127.0.0.1", Port: 9001}

	_, seq := l.SendReliable(tr, codec.Fields{"message_type": "HANDSHAKE_REQUEST"}, addr)
	l.HandleAck(seq, other)

	if l.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1 (ACK from wrong address must not demux)", l.PendingCount())
	}
}

func TestMulticastKeysPerDestination(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	spectators := []model.Addr{
		{IP: "10.0.0.1", Port: 1},
		{IP: "10.0.0.2", Port: 2},
		{IP: "10.0.0.3", Port: 3},
	}

	_, seq := l.SendReliableToMany(tr, codec.Fields{"message_type": "CALCULATION_REPORT"}, spectators)
	if l.PendingCount() != 3 {
		t.Fatalf("PendingCount = %d, want 3 (one per destination)", l.PendingCount())
	}

	// ACKing one spectator must not clear the others' pending records.
	l.HandleAck(seq, spectators[0])
	if l.PendingCount() != 2 {
		t.Errorf("PendingCount = %d, want 2 after one spectator ACKs", l.PendingCount())
	}
}

func TestObserveIncomingSendsExactlyOneAck(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	from := model.Addr{IP: "127.0.0.1", Port: 9000}

	fields := codec.Fields{"message_type": "ATTACK_ANNOUNCE", "move_name": "Tackle", "sequence_number": "5"}
	seq, had := l.ObserveIncoming(tr, fields, from)
	if !had || seq != 5 {
		t.Fatalf("ObserveIncoming = (%d, %v), want (5, true)", seq, had)
	}

	acks := 0
	for _, d := range tr.sent {
		decoded, _ := codec.Decode(d.data)
		if decoded["message_type"] == "ACK" {
			acks++
		}
	}
	if acks != 1 {
		t.Errorf("acks sent = %d, want 1", acks)
	}
}

func TestObserveIncomingAlignsSequenceSpace(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	from := model.Addr{IP: "127.0.0.1", Port: 9000}

	l.ObserveIncoming(tr, codec.Fields{"sequence_number": "100"}, from)

	next := l.NextSequenceNumber()
	if next != 101 {
		t.Errorf("next sequence = %d, want 101 (aligned past remote's 100)", next)
	}
}

func TestObserveIncomingWithoutSequenceDoesNotAck(t *testing.T) {
	l := New(nil)
	tr := newFakeTransport()
	from := model.Addr{IP: "127.0.0.1", Port: 9000}

	_, had := l.ObserveIncoming(tr, codec.Fields{"message_type": "CHAT_MESSAGE"}, from)
	if had {
		t.Error("expected hadSeq=false for message without sequence_number")
	}
	if len(tr.sent) != 0 {
		t.Errorf("expected no ACK sent, got %d datagrams", len(tr.sent))
	}
}

func TestTickRetransmitsAfterTimeout(t *testing.T) {
	l := New(nil)
	l.Timeout = 10 * time.Millisecond
	tr := newFakeTransport()
	addr := model.Addr{IP: "127.0.0.1", Port: 9000}

	l.SendReliable(tr, codec.Fields{"message_type": "BATTLE_SETUP"}, addr)
	initialSends := len(tr.sent)

	time.Sleep(15 * time.Millisecond)
	if err := l.Tick(tr); err != nil {
		t.Fatalf("Tick returned error before exhaustion: %v", err)
	}

	if len(tr.sent) != initialSends+1 {
		t.Errorf("sends after tick = %d, want %d (one retransmission)", len(tr.sent), initialSends+1)
	}
}

func TestTickExhaustionRaisesReliabilityError(t *testing.T) {
	l := New(nil)
	l.Timeout = 1 * time.Millisecond
	l.MaxRetries = 0
	tr := newFakeTransport()
	addr := model.Addr{IP: "127.0.0.1", Port: 9000}

	l.SendReliable(tr, codec.Fields{"message_type": "ATTACK_ANNOUNCE"}, addr)
	time.Sleep(5 * time.Millisecond)

	var relErr *ReliabilityError
	err := l.Tick(tr)
	if !errors.As(err, &relErr) {
		t.Fatalf("expected *ReliabilityError, got %v", err)
	}
}
