package protocol

import (
	"math/rand"
	"strconv"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
)

// seedMin and seedMax bound the host's uniformly-drawn handshake seed.
const (
	seedMin = 1
	seedMax = 999999
)

// Connect is called by a joiner once its PeerAddr is known (typically
// supplied by the discovery adapter). It sends HANDSHAKE_REQUEST reliably
// and leaves the session in SETUP until HANDSHAKE_RESPONSE arrives.
func (e *Engine) Connect(hostAddr model.Addr) error {
	e.Session.Mu.Lock()
	if e.Session.Role != model.RoleJoiner {
		e.Session.Mu.Unlock()
		return ErrNotPeerRole
	}
	e.Session.PeerAddr = &hostAddr
	e.Session.Mu.Unlock()

	e.sendReliable(codec.Fields{"message_type": MsgHandshakeRequest}, hostAddr)
	return nil
}

func (e *Engine) handleHandshakeRequest(fields codec.Fields, from model.Addr) {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role != model.RoleHost {
		logger.Debug("protocol: ignoring HANDSHAKE_REQUEST, local role is %s", e.Session.Role)
		return
	}
	// A retransmitted request (our ACK or response was lost) must not
	// re-seed an already-established session, and a second joiner must not
	// displace the first.
	if e.Session.Phase != PhaseSetup {
		logger.Debug("protocol: ignoring HANDSHAKE_REQUEST in phase %s", e.Session.Phase)
		return
	}

	e.Session.PeerAddr = &from
	e.Session.BattleID = newBattleID()

	seed := int64(seedMin + rand.Intn(seedMax-seedMin+1))
	e.Session.RNG.Seed(seed)

	e.Session.Phase = PhaseWaitingForSetup
	e.Session.TurnOwner = model.TurnLocal

	logger.Success("protocol: handshake from %s accepted, battle %s seeded with %d", from, e.Session.BattleID, seed)

	e.sendReliableLocked(codec.Fields{
		"message_type": MsgHandshakeResponse,
		"seed":         strconv.FormatInt(seed, 10),
	}, from)
}

func (e *Engine) handleHandshakeResponse(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgHandshakeResponse])
	if !ok {
		logger.Warn("protocol: HANDSHAKE_RESPONSE missing field %q, discarding", missing)
		return
	}

	seed, err := codec.ParseIntField(fields, "seed")
	if err != nil {
		logger.Warn("protocol: HANDSHAKE_RESPONSE has invalid seed: %v", err)
		return
	}

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role != model.RoleJoiner {
		return
	}
	if e.Session.Phase != PhaseSetup {
		logger.Debug("protocol: ignoring duplicate HANDSHAKE_RESPONSE in phase %s", e.Session.Phase)
		return
	}

	e.Session.RNG.Seed(seed)
	e.Session.BattleID = newBattleID()
	e.Session.Phase = PhaseWaitingForSetup
	e.Session.TurnOwner = model.TurnRemote

	logger.Success("protocol: seeded battle %s with %d from host %s", e.Session.BattleID, seed, from)
}

// RequestSpectate is called by a spectator once it has a host address
// (typically from the discovery adapter). senderName may be empty.
func (e *Engine) RequestSpectate(hostAddr model.Addr, senderName string) error {
	e.Session.Mu.Lock()
	if e.Session.Role != model.RoleSpectator {
		e.Session.Mu.Unlock()
		return ErrNotPeerRole
	}
	e.Session.PeerAddr = &hostAddr
	e.Session.Mu.Unlock()

	fields := codec.Fields{"message_type": MsgSpectatorRequest}
	if senderName != "" {
		fields["sender_name"] = senderName
	}
	e.sendReliable(fields, hostAddr)
	return nil
}

func (e *Engine) handleSpectatorRequest(fields codec.Fields, from model.Addr) {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role != model.RoleHost {
		logger.Debug("protocol: ignoring SPECTATOR_REQUEST, local role is %s", e.Session.Role)
		return
	}

	if _, known := e.Session.Spectators[from]; known {
		return
	}

	name := fields["sender_name"]
	if name == "" {
		name = fields["trainer_name"]
	}

	e.Session.Spectators[from] = name
	e.Session.SpectatorIDs[from] = newSpectatorID()
	e.metrics.SetSpectators(len(e.Session.Spectators))

	logger.Info("protocol: spectator %s registered as %s", e.Session.SpectatorIDs[from], name)
}

// sendReliableLocked sends while Session.Mu is already held by the caller.
// The reliability layer has its own internal mutex, so this is safe as
// long as handlers never call back into Session-mutating code from it.
func (e *Engine) sendReliableLocked(fields codec.Fields, addr model.Addr) (bool, uint64) {
	return e.reliability.SendReliable(e.transport, fields, addr)
}
