package model

import "fmt"

// Addr is a peer address: an IPv4 string and a UDP port. Two addresses are
// equal iff both components match.
type Addr struct {
	IP   string
	Port int
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// Role is one of HOST, JOINER, SPECTATOR.
type Role string

const (
	RoleHost      Role = "HOST"
	RoleJoiner    Role = "JOINER"
	RoleSpectator Role = "SPECTATOR"
)

// TurnOwner identifies whose turn it currently is from a peer's own
// perspective: LOCAL or REMOTE.
type TurnOwner string

const (
	TurnLocal  TurnOwner = "LOCAL"
	TurnRemote TurnOwner = "REMOTE"
)

// Opposite flips LOCAL<->REMOTE, used when a CALCULATION_CONFIRM advances
// the turn.
func (t TurnOwner) Opposite() TurnOwner {
	if t == TurnLocal {
		return TurnRemote
	}
	return TurnLocal
}
