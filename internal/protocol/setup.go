package protocol

import (
	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
)

// SubmitCreature is called by the local driver once it has built a
// Creature from the (external) catalog, before battle starts. It sends
// BATTLE_SETUP reliably to the peer.
func (e *Engine) SubmitCreature(creature *model.Creature, statBoosts string) error {
	e.Session.Mu.Lock()
	if e.Session.Role == model.RoleSpectator {
		e.Session.Mu.Unlock()
		return ErrNotPeerRole
	}
	peerAddr := e.Session.PeerAddr
	e.Session.LocalPokemon = creature
	e.Session.Mu.Unlock()

	if peerAddr == nil {
		return ErrNotPeerRole
	}

	pokemonJSON, err := model.EncodeCreature(creature)
	if err != nil {
		return err
	}

	e.sendReliable(codec.Fields{
		"message_type":       MsgBattleSetup,
		"communication_mode": "P2P",
		"pokemon_name":       creature.Name,
		"pokemon":            pokemonJSON,
		"stat_boosts":        statBoosts,
		"trainer_name":       e.Session.LocalName,
	}, *peerAddr)

	return nil
}

func (e *Engine) handleBattleSetup(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgBattleSetup])
	if !ok {
		logger.Warn("protocol: BATTLE_SETUP from %s missing field %q, discarding", from, missing)
		return
	}

	creature, err := model.DecodeCreature(fields["pokemon"])
	if err != nil {
		logger.Warn("protocol: BATTLE_SETUP from %s has unparseable pokemon JSON: %v", from, err)
		return
	}

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		// Spectators treat BATTLE_SETUP as a read-only view update; they
		// still reconstruct the creatures for display but never transition
		// phases or compute damage.
		if e.Session.RemotePokemon == nil {
			e.Session.RemotePokemon = creature
		} else {
			e.Session.LocalPokemon = creature
		}
		return
	}

	e.Session.RemotePokemon = creature
	e.Session.RemoteName = fields["trainer_name"]

	// A retransmitted BATTLE_SETUP (peer never saw our ACK) must not rewind
	// the turn state once battle has already started.
	if e.Session.Phase != PhaseWaitingForSetup {
		return
	}

	if e.Session.LocalPokemon != nil && e.Session.RemotePokemon != nil {
		e.Session.Phase = PhaseWaitingForMove
		if e.Session.Role == model.RoleHost {
			e.Session.TurnOwner = model.TurnLocal
		} else {
			e.Session.TurnOwner = model.TurnRemote
		}
		logger.Success("protocol: battle setup complete, %s moves first", e.Session.TurnOwner)
	}
}
