package protocol

import "pokeproto-go/pkg/codec"

// relayToSpectators forwards a sanitized copy of a non-ACK message from the
// battling peer to every registered spectator, stripping the sender's own
// sequence number so each spectator gets a fresh one under the host's own
// sequence space. Spectators are
// read-only: they never calculate damage or execute state transitions, they
// just decode these relayed copies for display.
func (e *Engine) relayToSpectators(fields codec.Fields) {
	e.Session.Mu.Lock()
	addrs := e.Session.SpectatorAddrs()
	e.Session.Mu.Unlock()

	if len(addrs) == 0 {
		return
	}

	copyFields := make(codec.Fields, len(fields))
	for k, v := range fields {
		if k == "sequence_number" || k == "ack_number" {
			continue
		}
		copyFields[k] = v
	}

	e.reliability.SendReliableToMany(e.transport, copyFields, addrs)
}
