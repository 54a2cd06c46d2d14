package model

// DamageCategory is one of physical, special, status.
type DamageCategory string

const (
	CategoryPhysical DamageCategory = "physical"
	CategorySpecial  DamageCategory = "special"
	CategoryStatus   DamageCategory = "status"
)

// Move is immutable after catalog load.
type Move struct {
	Name           string         `json:"name"`
	Power          float64        `json:"power"`
	DamageCategory DamageCategory `json:"damage_category"`
	Type           string         `json:"type"`

	ScaleWithHP bool    `json:"scale_with_hp,omitempty"`
	HPRatio     float64 `json:"hp_ratio,omitempty"`
	PowerMin    float64 `json:"power_min,omitempty"`
	PowerMax    float64 `json:"power_max,omitempty"`
}

// EffectivePower computes the power used in damage calculation: HP-scaled
// and clamped to [PowerMin, PowerMax] when ScaleWithHP is set, else the
// move's fixed Power.
func (m Move) EffectivePower(attacker *Creature) float64 {
	if !m.ScaleWithHP {
		return m.Power
	}
	p := float64(attacker.MaxHP) * m.HPRatio
	if p < m.PowerMin {
		p = m.PowerMin
	}
	if p > m.PowerMax {
		p = m.PowerMax
	}
	return p
}
