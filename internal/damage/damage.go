// Package damage implements the damage function. It is deliberately
// impure: boost-use counters on both creatures are consumed as a
// documented side effect so later turns see the change.
package damage

import (
	"fmt"
	"math"

	"pokeproto-go/internal/model"
)

const (
	specialBoostMultiplier = 1.3
	hugePowerMultiplier    = 2.0
	thickFatMultiplier     = 0.5
)

// Effectiveness threshold for status_message wording.
const (
	superEffectiveThreshold = 1.5
)

// Result carries the computed damage plus the effectiveness multiplier
// applied, so the caller (the turn handler) can build a status_message
// without recomputing effectiveness itself.
type Result struct {
	Damage        int
	Effectiveness float64
}

// ErrMissingCreature is returned when either creature argument is nil: an
// internal programming error that must terminate the session.
var ErrMissingCreature = fmt.Errorf("damage: attacker or defender is nil")

// Calculate computes damage dealt by attacker's move against defender. It
// mutates attacker/defender's boost-use counters for special moves;
// callers must not assume this call is side-effect-free.
func Calculate(attacker, defender *model.Creature, move model.Move) (Result, error) {
	if attacker == nil || defender == nil {
		return Result{}, ErrMissingCreature
	}

	if move.DamageCategory == model.CategoryStatus {
		return Result{Damage: 0, Effectiveness: 1.0}, nil
	}

	var atkStat, defStat float64

	switch move.DamageCategory {
	case model.CategoryPhysical:
		atkStat = attacker.Attack
		defStat = defender.Defense
		if attacker.HasAbility("huge power") {
			atkStat *= hugePowerMultiplier
		}
	case model.CategorySpecial:
		atkStat = attacker.SpecialAttack
		defStat = defender.SpecialDefense

		if attacker.SpecialAttackUses > 0 {
			attacker.SpecialAttackUses--
			atkStat *= specialBoostMultiplier
		}
		if defender.SpecialDefenseUses > 0 {
			defender.SpecialDefenseUses--
			defStat *= specialBoostMultiplier
		}
	}

	if defStat < 1 {
		defStat = 1
	}

	eff := defender.EffectivenessFor(move.Type)
	if defender.HasAbility("thick fat") && (move.Type == "fire" || move.Type == "ice") {
		eff *= thickFatMultiplier
	}

	if eff == 0 {
		return Result{Damage: 0, Effectiveness: eff}, nil
	}

	power := move.EffectivePower(attacker)
	raw := (power * atkStat * eff) / defStat
	dmg := int(math.Floor(raw))
	if dmg < 1 {
		dmg = 1
	}

	return Result{Damage: dmg, Effectiveness: eff}, nil
}

// EffectivenessQualifier renders the human-readable status_message
// suffix: "super effective" for eff >= 1.5, "no effect" for eff == 0,
// "not very effective" for 0 < eff < 1.0, and no qualifier otherwise.
func EffectivenessQualifier(eff float64) string {
	switch {
	case eff == 0:
		return "It had no effect."
	case eff >= superEffectiveThreshold:
		return "It was super effective!"
	case eff > 0 && eff < 1.0:
		return "It was not very effective."
	default:
		return ""
	}
}
