package transport

import (
	"sync"

	"pokeproto-go/internal/model"
)

// Network is an in-process datagram bus: a shared registry of
// MemoryTransport endpoints keyed by address, used to drive the two-peer
// (and spectator) end-to-end tests without a real socket.
type Network struct {
	mu        sync.Mutex
	endpoints map[model.Addr]*MemoryTransport

	// dropRules lets tests simulate a single lost BATTLE_SETUP or a
	// permanently dropped ATTACK_ANNOUNCE.
	dropRules map[string]int // destination address -> remaining drops (-1 = drop forever)
}

// NewNetwork builds an empty in-memory network.
func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[model.Addr]*MemoryTransport),
		dropRules: make(map[string]int),
	}
}

// DropNext arranges for the next `count` datagrams destined for `addr` to
// be silently discarded (simulated packet loss). count == -1 drops
// forever, for the retry-exhaustion tests.
func (n *Network) DropNext(addr model.Addr, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRules[addr.String()] = count
}

func (n *Network) shouldDrop(addr model.Addr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	remaining, ok := n.dropRules[addr.String()]
	if !ok || remaining == 0 {
		return false
	}
	if remaining > 0 {
		n.dropRules[addr.String()] = remaining - 1
	}
	return true
}

func (n *Network) register(addr model.Addr, t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[addr] = t
}

func (n *Network) unregister(addr model.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, addr)
}

// MemoryTransport implements Transport over a Network: Send enqueues onto
// the destination's inbox (unless a drop rule consumes it), Receive pops
// from the local inbox, blocking while it is empty.
type MemoryTransport struct {
	net  *Network
	addr model.Addr

	mu     sync.Mutex
	cond   *sync.Cond
	inbox  []datagram
	closed bool
}

type datagram struct {
	data []byte
	from model.Addr
}

// NewMemoryTransport registers a new endpoint at addr on the given network.
func NewMemoryTransport(net *Network, addr model.Addr) *MemoryTransport {
	t := &MemoryTransport{net: net, addr: addr}
	t.cond = sync.NewCond(&t.mu)
	net.register(addr, t)
	return t
}

func (t *MemoryTransport) Send(data []byte, addr model.Addr) bool {
	if t.net.shouldDrop(addr) {
		return true // the sender cannot distinguish loss from success
	}

	t.net.mu.Lock()
	dest, ok := t.net.endpoints[addr]
	t.net.mu.Unlock()
	if !ok {
		return false
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	dest.mu.Lock()
	if dest.closed {
		dest.mu.Unlock()
		return false
	}
	dest.inbox = append(dest.inbox, datagram{data: cp, from: t.addr})
	dest.cond.Signal()
	dest.mu.Unlock()
	return true
}

// Receive blocks until a datagram is available or the transport is closed.
// Unlike UDPTransport it has no fixed timeout; tests drive it from a
// goroutine per peer and rely on Close to unblock.
func (t *MemoryTransport) Receive() ([]byte, model.Addr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.inbox) == 0 && !t.closed {
		t.cond.Wait()
	}
	if len(t.inbox) == 0 {
		return nil, model.Addr{}, false
	}

	d := t.inbox[0]
	t.inbox = t.inbox[1:]
	return d.data, d.from, true
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.cond.Broadcast()
	t.mu.Unlock()
	t.net.unregister(t.addr)
	return nil
}
