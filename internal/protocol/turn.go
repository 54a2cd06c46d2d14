package protocol

import (
	"strconv"

	"pokeproto-go/internal/damage"
	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
)

// AnnounceAttack is called by the local driver when it is the local peer's
// turn. It sends ATTACK_ANNOUNCE and transitions WAITING_FOR_MOVE ->
// WAITING_FOR_DEFENSE.
func (e *Engine) AnnounceAttack(moveName string) error {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		return ErrNotPeerRole
	}
	if e.Session.Phase != PhaseWaitingForMove {
		return &ErrWrongPhase{Want: PhaseWaitingForMove, Got: e.Session.Phase}
	}
	if e.Session.TurnOwner != model.TurnLocal {
		return ErrNotTurnOwner
	}
	peerAddr := e.Session.PeerAddr
	if peerAddr == nil {
		return ErrNotPeerRole
	}

	e.Session.LastAnnouncedMove = moveName
	e.Session.IsAttacker = true
	e.Session.Phase = PhaseWaitingForDefense

	e.sendReliableLocked(codec.Fields{
		"message_type": MsgAttackAnnounce,
		"move_name":    moveName,
	}, *peerAddr)

	return nil
}

// handleAttackAnnounce is received by the defender. It replies with
// DEFENSE_ANNOUNCE and immediately computes its own view of the turn's
// damage.
func (e *Engine) handleAttackAnnounce(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgAttackAnnounce])
	if !ok {
		logger.Warn("protocol: ATTACK_ANNOUNCE from %s missing field %q, discarding", from, missing)
		return
	}
	moveName := fields["move_name"]

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		e.Session.RemoteMove = moveName
		return
	}
	if e.Session.Phase != PhaseWaitingForMove {
		logger.Debug("protocol: ignoring ATTACK_ANNOUNCE in phase %s", e.Session.Phase)
		return
	}

	e.Session.RemoteMove = moveName
	e.Session.IsAttacker = false
	e.Session.Phase = PhaseProcessingTurn

	peerAddr := e.Session.PeerAddr
	if peerAddr == nil {
		return
	}
	e.sendReliableLocked(codec.Fields{"message_type": MsgDefenseAnnounce}, *peerAddr)

	// Local is the defender this turn: attacker is RemotePokemon as seen
	// from here, defender is LocalPokemon.
	report := e.computeCalcReportLocked(e.Session.RemotePokemon, e.Session.LocalPokemon, moveName)
	if report == nil {
		return
	}
	e.Session.LocalCalcReport = report
	e.sendCalcReportLocked(*peerAddr, report)

	// The peer's report may have arrived ahead of the announce under
	// reordering; reconcile now instead of waiting on a message that was
	// already consumed. A fainted defender is also raised from there, after
	// the reports have been compared.
	e.reconcileLocked()
}

// handleDefenseAnnounce is received by the attacker. It computes its own
// view of the turn's damage using the move it announced.
func (e *Engine) handleDefenseAnnounce(fields codec.Fields, from model.Addr) {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		return
	}
	if e.Session.Phase != PhaseWaitingForDefense {
		logger.Debug("protocol: ignoring DEFENSE_ANNOUNCE in phase %s", e.Session.Phase)
		return
	}

	e.Session.Phase = PhaseProcessingTurn

	peerAddr := e.Session.PeerAddr
	if peerAddr == nil {
		return
	}

	// Local is the attacker this turn: attacker is LocalPokemon, defender
	// is RemotePokemon as seen from here.
	report := e.computeCalcReportLocked(e.Session.LocalPokemon, e.Session.RemotePokemon, e.Session.LastAnnouncedMove)
	if report == nil {
		return
	}
	e.Session.LocalCalcReport = report
	e.sendCalcReportLocked(*peerAddr, report)
	e.reconcileLocked()
}

// computeCalcReportLocked runs the damage engine and builds the local
// CalcReport. Must be called with Session.Mu held.
func (e *Engine) computeCalcReportLocked(attacker, defender *model.Creature, moveName string) *CalcReport {
	if attacker == nil || defender == nil {
		logger.Error("protocol: cannot compute damage: %v", damage.ErrMissingCreature)
		e.Session.Running = false
		return nil
	}
	if e.moves == nil {
		logger.Warn("protocol: no move catalog wired, cannot resolve %q", moveName)
		return nil
	}
	move, ok := e.moves.Move(moveName)
	if !ok {
		logger.Warn("protocol: unknown move %q announced", moveName)
		return nil
	}

	result, err := damage.Calculate(attacker, defender, *move)
	if err != nil {
		logger.Error("protocol: damage calculation failed: %v", err)
		e.Session.Running = false
		return nil
	}
	defender.HP -= result.Damage
	defender.ClampHP()

	status := move.Name
	if q := damage.EffectivenessQualifier(result.Effectiveness); q != "" {
		status = status + " " + q
	}

	return &CalcReport{
		Attacker:            attacker.Name,
		MoveUsed:            moveName,
		RemainingHealth:     attacker.HP,
		DamageDealt:         result.Damage,
		DefenderHPRemaining: defender.HP,
		StatusMessage:       status,
	}
}

// sendCalcReportLocked sends the local CalcReport as CALCULATION_REPORT.
// Must be called with Session.Mu held.
func (e *Engine) sendCalcReportLocked(peerAddr model.Addr, report *CalcReport) {
	e.sendReliableLocked(codec.Fields{
		"message_type":          MsgCalculationReport,
		"attacker":              report.Attacker,
		"move_used":             report.MoveUsed,
		"remaining_health":      strconv.Itoa(report.RemainingHealth),
		"damage_dealt":          strconv.Itoa(report.DamageDealt),
		"defender_hp_remaining": strconv.Itoa(report.DefenderHPRemaining),
		"status_message":        report.StatusMessage,
	}, peerAddr)
}

// handleCalculationReport stores the peer's report and reconciles once both
// reports for this turn are present.
func (e *Engine) handleCalculationReport(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgCalculationReport])
	if !ok {
		logger.Warn("protocol: CALCULATION_REPORT from %s missing field %q, discarding", from, missing)
		return
	}

	remainingHealth, err1 := codec.ParseIntField(fields, "remaining_health")
	damageDealt, err2 := codec.ParseIntField(fields, "damage_dealt")
	defenderHP, err3 := codec.ParseIntField(fields, "defender_hp_remaining")
	if err1 != nil || err2 != nil || err3 != nil {
		logger.Warn("protocol: CALCULATION_REPORT from %s has non-integer fields, discarding", from)
		return
	}

	remote := &CalcReport{
		Attacker:            fields["attacker"],
		MoveUsed:            fields["move_used"],
		RemainingHealth:     int(remainingHealth),
		DamageDealt:         int(damageDealt),
		DefenderHPRemaining: int(defenderHP),
		StatusMessage:       fields["status_message"],
	}

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		e.applySpectatorViewLocked(remote, true)
		return
	}
	// Accept a report only while a turn is in flight. A retransmitted copy
	// landing after CALCULATION_CONFIRM already advanced the turn would
	// otherwise be mistaken for the next turn's report.
	if e.Session.Phase != PhaseWaitingForDefense && e.Session.Phase != PhaseProcessingTurn {
		logger.Debug("protocol: ignoring CALCULATION_REPORT in phase %s", e.Session.Phase)
		return
	}

	e.Session.LastRemoteCalcReport = remote
	if e.Session.LocalCalcReport == nil {
		// Our own computation hasn't landed yet; handleAttackAnnounce /
		// handleDefenseAnnounce reconcile once it does.
		return
	}

	e.reconcileLocked()
}

// applySpectatorViewLocked mirrors a relayed CALCULATION_REPORT or
// RESOLUTION_REQUEST onto the spectator's read-only view of the two
// battlers: no calculation, no turn transition, just the health numbers
// the battling peers reported. haveAttackerHP is false for
// RESOLUTION_REQUEST, which carries no remaining_health for the attacker.
// Must be called with Session.Mu held.
func (e *Engine) applySpectatorViewLocked(report *CalcReport, haveAttackerHP bool) {
	for _, c := range []*model.Creature{e.Session.LocalPokemon, e.Session.RemotePokemon} {
		if c == nil {
			continue
		}
		if c.Name == report.Attacker {
			if haveAttackerHP {
				c.HP = report.RemainingHealth
			}
		} else {
			c.HP = report.DefenderHPRemaining
		}
		c.ClampHP()
	}
}

// reconcileLocked compares the local and remote CalcReports for the current
// turn. On agreement it sends CALCULATION_CONFIRM; on disagreement the
// attacker, and only the attacker, sends RESOLUTION_REQUEST with its own
// authoritative numbers. A fainted defender raises GAME_OVER only here,
// after the reports have been compared and confirmed, so the confirm
// exchange always precedes termination. Must be called with Session.Mu
// held.
func (e *Engine) reconcileLocked() {
	if e.Session.Phase == PhaseGameOver {
		return
	}

	local := e.Session.LocalCalcReport
	remote := e.Session.LastRemoteCalcReport
	peerAddr := e.Session.PeerAddr
	if local == nil || remote == nil || peerAddr == nil {
		return
	}

	// The creature this side's own computation damaged this turn.
	defender := e.Session.LocalPokemon
	if e.Session.IsAttacker {
		defender = e.Session.RemotePokemon
	}

	if local.DamageDealt == remote.DamageDealt && local.DefenderHPRemaining == remote.DefenderHPRemaining {
		e.sendReliableLocked(codec.Fields{"message_type": MsgCalculationConfirm}, *peerAddr)
		if defender != nil && defender.Fainted() {
			e.sendGameOverLocked(local.Attacker, defender.Name)
		}
		return
	}

	logger.Warn("protocol: calculation discrepancy: local damage=%d hp=%d, remote damage=%d hp=%d",
		local.DamageDealt, local.DefenderHPRemaining, remote.DamageDealt, remote.DefenderHPRemaining)

	if !e.Session.IsAttacker {
		// Only the attacker is authoritative; wait for its RESOLUTION_REQUEST.
		return
	}

	e.sendReliableLocked(codec.Fields{
		"message_type":          MsgResolutionRequest,
		"attacker":              local.Attacker,
		"move_used":             local.MoveUsed,
		"damage_dealt":          strconv.Itoa(local.DamageDealt),
		"defender_hp_remaining": strconv.Itoa(local.DefenderHPRemaining),
	}, *peerAddr)

	if defender != nil && defender.Fainted() {
		e.sendGameOverLocked(local.Attacker, defender.Name)
		return
	}

	// The attacker's own computation is already authoritative and already
	// applied to its local view of the defender; it doesn't wait for
	// anything further before advancing (the defender reaches the same
	// state once its RESOLUTION_REQUEST arrives and is accepted).
	e.advanceTurnLocked()
}

// handleCalculationConfirm flips TurnOwner, clears per-turn buffers, and
// returns to WAITING_FOR_MOVE.
func (e *Engine) handleCalculationConfirm(fields codec.Fields, from model.Addr) {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		return
	}
	// Only a turn still being processed can be confirmed; a duplicate
	// CONFIRM after the turn already advanced must not flip TurnOwner again.
	if e.Session.Phase != PhaseProcessingTurn {
		logger.Debug("protocol: ignoring CALCULATION_CONFIRM in phase %s", e.Session.Phase)
		return
	}

	e.advanceTurnLocked()
	e.metrics.IncTurnCompleted()
}

// handleResolutionRequest applies the attacker's authoritative numbers.
// Only the defender for this turn accepts one; the attacker ignores an
// incoming RESOLUTION_REQUEST.
func (e *Engine) handleResolutionRequest(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgResolutionRequest])
	if !ok {
		logger.Warn("protocol: RESOLUTION_REQUEST from %s missing field %q, discarding", from, missing)
		return
	}
	defenderHP, err := codec.ParseIntField(fields, "defender_hp_remaining")
	if err != nil {
		logger.Warn("protocol: RESOLUTION_REQUEST from %s has invalid defender_hp_remaining: %v", from, err)
		return
	}

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role == model.RoleSpectator {
		e.applySpectatorViewLocked(&CalcReport{
			Attacker:            fields["attacker"],
			MoveUsed:            fields["move_used"],
			DefenderHPRemaining: int(defenderHP),
		}, false)
		return
	}
	if e.Session.Phase != PhaseProcessingTurn {
		logger.Debug("protocol: ignoring RESOLUTION_REQUEST in phase %s", e.Session.Phase)
		return
	}
	if e.Session.IsAttacker {
		logger.Debug("protocol: attacker ignoring incoming RESOLUTION_REQUEST")
		return
	}

	attackerName := fields["attacker"]
	var defender *model.Creature
	if e.Session.RemotePokemon != nil && attackerName == e.Session.RemotePokemon.Name {
		defender = e.Session.LocalPokemon
	} else {
		defender = e.Session.RemotePokemon
	}
	if defender == nil {
		return
	}

	defender.HP = int(defenderHP)
	defender.ClampHP()

	logger.Warn("protocol: resolution accepted, %s hp set to %d by attacker authority", defender.Name, defender.HP)

	e.metrics.IncDiscrepancyResolved()

	if defender.Fainted() {
		e.sendGameOverLocked(attackerName, defender.Name)
		return
	}

	e.advanceTurnLocked()
}

// sendGameOverLocked ends the battle: the peer whose view of the defender
// just crossed zero hp reports the result and stops.
func (e *Engine) sendGameOverLocked(winner, loser string) {
	e.Session.Phase = PhaseGameOver
	e.Session.Running = false

	if peerAddr := e.Session.PeerAddr; peerAddr != nil {
		e.sendReliableLocked(codec.Fields{
			"message_type": MsgGameOver,
			"winner":       winner,
			"loser":        loser,
		}, *peerAddr)
	}

	logger.Success("protocol: battle over, %s defeated %s", winner, loser)
}

// handleGameOver mirrors the remote peer's termination.
func (e *Engine) handleGameOver(fields codec.Fields, from model.Addr) {
	ok, missing := codec.RequireFields(fields, requiredFields[MsgGameOver])
	if !ok {
		logger.Warn("protocol: GAME_OVER from %s missing field %q, discarding", from, missing)
		return
	}

	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	e.Session.Phase = PhaseGameOver
	e.Session.Running = false

	logger.Success("protocol: battle over, %s defeated %s", fields["winner"], fields["loser"])
}

// advanceTurnLocked flips TurnOwner, clears per-turn buffers, and returns
// to WAITING_FOR_MOVE. Must be called with Session.Mu held.
func (e *Engine) advanceTurnLocked() {
	e.Session.TurnOwner = e.Session.TurnOwner.Opposite()
	e.Session.Phase = PhaseWaitingForMove
	e.Session.LastAnnouncedMove = ""
	e.Session.RemoteMove = ""
	e.Session.LocalCalcReport = nil
	e.Session.LastRemoteCalcReport = nil
	e.Session.IsAttacker = false
}
