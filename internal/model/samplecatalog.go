package model

// SampleCatalog is a tiny in-memory CreatureCatalog/MoveCatalog used by
// the bootstrap when no real data loader is wired in, so `cmd/pokeproto`
// has something to run against standalone.
type SampleCatalog struct {
	creatures map[string]*Creature
	moves     map[string]*Move
}

// NewSampleCatalog seeds a handful of creatures/moves for manual testing.
func NewSampleCatalog() *SampleCatalog {
	return &SampleCatalog{
		creatures: map[string]*Creature{
			"emberling": {
				Name: "emberling", MaxHP: 45, HP: 45,
				Attack: 60, SpecialAttack: 80, Defense: 50, SpecialDefense: 50,
				Types:         []string{"fire"},
				Effectiveness: map[string]float64{"water": 2.0, "fire": 0.5},
			},
			"tidalon": {
				Name: "tidalon", MaxHP: 50, HP: 50,
				Attack: 55, SpecialAttack: 70, Defense: 60, SpecialDefense: 65,
				Types:         []string{"water"},
				Effectiveness: map[string]float64{"fire": 0.5, "water": 0.5},
			},
		},
		moves: map[string]*Move{
			"ember":    {Name: "ember", Power: 40, DamageCategory: CategorySpecial, Type: "fire"},
			"tackle":   {Name: "tackle", Power: 35, DamageCategory: CategoryPhysical, Type: "normal"},
			"aqua_jet": {Name: "aqua_jet", Power: 40, DamageCategory: CategoryPhysical, Type: "water"},
			"growl":    {Name: "growl", Power: 0, DamageCategory: CategoryStatus, Type: "normal"},
		},
	}
}

func (c *SampleCatalog) Creature(name string) (*Creature, bool) {
	cr, ok := c.creatures[name]
	if !ok {
		return nil, false
	}
	clone := *cr
	clone.Effectiveness = make(map[string]float64, len(cr.Effectiveness))
	for k, v := range cr.Effectiveness {
		clone.Effectiveness[k] = v
	}
	return &clone, true
}

func (c *SampleCatalog) Move(name string) (*Move, bool) {
	m, ok := c.moves[name]
	return m, ok
}
