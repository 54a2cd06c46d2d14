package model

import "encoding/json"

// Creature is a runtime battle instance. The damage engine mutates it in
// place by consuming the boost-use counters; the stat fields themselves
// are not rescaled.
type Creature struct {
	Name           string   `json:"name"`
	MaxHP          int      `json:"max_hp"`
	HP             int      `json:"hp"`
	Attack         float64  `json:"attack"`
	SpecialAttack  float64  `json:"special_attack"`
	Defense        float64  `json:"defense"`
	SpecialDefense float64  `json:"special_defense"`
	Types          []string `json:"types"`
	Abilities      []string `json:"abilities,omitempty"`

	SpecialAttackUses  int `json:"special_attack_uses"`
	SpecialDefenseUses int `json:"special_defense_uses"`

	// Effectiveness maps a lower-case attacking type to a real multiplier.
	// Absent keys default to 1.0.
	Effectiveness map[string]float64 `json:"effectiveness"`
}

// Fainted reports whether the creature has been reduced to zero or less HP.
func (c *Creature) Fainted() bool {
	return c.HP <= 0
}

// HasAbility reports whether the creature carries the given lower-case
// ability tag.
func (c *Creature) HasAbility(tag string) bool {
	for _, a := range c.Abilities {
		if a == tag {
			return true
		}
	}
	return false
}

// EffectivenessFor returns the multiplier for an attacking type, defaulting
// to 1.0 when the type is absent from the table.
func (c *Creature) EffectivenessFor(attackType string) float64 {
	if c.Effectiveness == nil {
		return 1.0
	}
	if v, ok := c.Effectiveness[attackType]; ok {
		return v
	}
	return 1.0
}

// ClampHP keeps 0 <= hp <= maxHp after any mutation that might have pushed
// it out of range.
func (c *Creature) ClampHP() {
	if c.HP > c.MaxHP {
		c.HP = c.MaxHP
	}
	if c.HP < 0 {
		c.HP = 0
	}
}

// DecodeCreature parses a JSON-encoded creature snapshot, as carried in the
// `pokemon` field of BATTLE_SETUP.
func DecodeCreature(raw string) (*Creature, error) {
	var c Creature
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	if c.Effectiveness == nil {
		c.Effectiveness = make(map[string]float64)
	}
	return &c, nil
}

// EncodeCreature serializes a creature snapshot for BATTLE_SETUP.
func EncodeCreature(c *Creature) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
