package protocol

import (
	"sync"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/rng"
)

// Phase is the state-machine state.
type Phase string

const (
	PhaseSetup             Phase = "SETUP"
	PhaseWaitingForSetup   Phase = "WAITING_FOR_SETUP"
	PhaseWaitingForMove    Phase = "WAITING_FOR_MOVE"
	PhaseWaitingForDefense Phase = "WAITING_FOR_DEFENSE"
	PhaseProcessingTurn    Phase = "PROCESSING_TURN"
	PhaseGameOver          Phase = "GAME_OVER"
)

// CalcReport mirrors the fields of a CALCULATION_REPORT / RESOLUTION_REQUEST
// message, kept as typed ints/strings rather than raw codec.Fields once
// decoded, so reconciliation logic doesn't re-parse strings.
type CalcReport struct {
	Attacker            string
	MoveUsed            string
	RemainingHealth     int
	DamageDealt         int
	DefenderHPRemaining int
	StatusMessage       string
}

// Session holds one battle's worth of state. All mutable fields are
// guarded by Mu; the engine's network task and any driver input task must
// hold Mu for the duration of a state read/mutation.
type Session struct {
	Mu sync.Mutex

	Role       model.Role
	LocalName  string
	RemoteName string

	PeerAddr *model.Addr // nil until Connect/RequestSpectate, or on the host until a HANDSHAKE_REQUEST is accepted

	LocalPokemon  *model.Creature
	RemotePokemon *model.Creature

	TurnOwner model.TurnOwner
	Phase     Phase

	LastAnnouncedMove string // the move the local peer announced as attacker
	RemoteMove        string // the move the remote peer announced as attacker

	// IsAttacker is true for the remainder of a turn in which the local
	// peer issued ATTACK_ANNOUNCE, false when it received one. It decides
	// RESOLUTION_REQUEST authority: only the defender accepts one; the
	// attacker ignores it.
	IsAttacker bool

	LocalCalcReport      *CalcReport
	LastRemoteCalcReport *CalcReport

	// Spectators, host-only: address -> display name (name may be empty).
	Spectators map[model.Addr]string
	// SpectatorIDs mirrors Spectators with a short xid per address for
	// logging without leaking raw UDP endpoints.
	SpectatorIDs map[model.Addr]string

	RNG *rng.Source

	Running bool

	// BattleID is a uuid minted once the handshake completes, used to tag
	// logs/metrics when multiple sessions share a process.
	BattleID string
}

// NewSession builds a fresh Session in the initial SETUP phase.
func NewSession(role model.Role, localName string) *Session {
	return &Session{
		Role:         role,
		LocalName:    localName,
		Phase:        PhaseSetup,
		Spectators:   make(map[model.Addr]string),
		SpectatorIDs: make(map[model.Addr]string),
		RNG:          rng.New(),
		Running:      true,
	}
}

// SpectatorAddrs returns a snapshot slice of registered spectator
// addresses, safe to use after releasing Mu.
func (s *Session) SpectatorAddrs() []model.Addr {
	addrs := make([]model.Addr, 0, len(s.Spectators))
	for a := range s.Spectators {
		addrs = append(addrs, a)
	}
	return addrs
}
