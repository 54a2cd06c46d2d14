package protocol

import "fmt"

// ErrNotPeerRole is returned when an operation reserved for battlers
// (attack, battle setup) is attempted by a spectator, which never issues
// the handshake and never calculates damage.
var ErrNotPeerRole = fmt.Errorf("protocol: operation not permitted for this role")

// ErrWrongPhase is returned when a driver-initiated action (e.g.
// AnnounceAttack) is attempted outside the phase that allows it.
type ErrWrongPhase struct {
	Want Phase
	Got  Phase
}

func (e *ErrWrongPhase) Error() string {
	return fmt.Sprintf("protocol: expected phase %s, got %s", e.Want, e.Got)
}

// ErrNotTurnOwner is returned when AnnounceAttack is called while it is not
// the local peer's turn.
var ErrNotTurnOwner = fmt.Errorf("protocol: it is not the local peer's turn")
