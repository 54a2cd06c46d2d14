package protocol

import (
	"testing"
	"time"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/reliability"
	"pokeproto-go/pkg/transport"
)

// testMoveCatalog is a minimal model.MoveCatalog for driving the state
// machine end to end without a real data-loader-backed catalog.
type testMoveCatalog struct {
	moves map[string]*model.Move
}

func newTestMoveCatalog(moves ...*model.Move) *testMoveCatalog {
	c := &testMoveCatalog{moves: make(map[string]*model.Move, len(moves))}
	for _, m := range moves {
		c.moves[m.Name] = m
	}
	return c
}

func (c *testMoveCatalog) Move(name string) (*model.Move, bool) {
	m, ok := c.moves[name]
	return m, ok
}

var (
	hostAddr      = model.Addr{IP: "127.0.0.1", Port: 6100}
	joinerAddr    = model.Addr{IP: "127.0.0.1", Port: 6101}
	spectatorAddr = model.Addr{IP: "127.0.0.1", Port: 6102}
)

type testPeer struct {
	engine *Engine
	tr     *transport.MemoryTransport
}

func newTestPeer(net *transport.Network, addr model.Addr, role model.Role, name string, moves model.MoveCatalog) testPeer {
	session := NewSession(role, name)
	tr := transport.NewMemoryTransport(net, addr)
	engine := NewEngine(session, tr, nil, moves)
	return testPeer{engine: engine, tr: tr}
}

type recvResult struct {
	data []byte
	from model.Addr
	ok   bool
}

// recvWithTimeout wraps a blocking Transport.Receive in a goroutine so a
// test can tell "nothing more to process" apart from "still in flight". A
// timed-out call leaves its goroutine blocked on Receive; the next call on
// the same transport waits on that goroutine instead of starting another,
// so a datagram it picks up later is handed over rather than lost.
var inFlight = make(map[transport.Transport]chan recvResult)

func recvWithTimeout(tr transport.Transport, timeout time.Duration) (recvResult, bool) {
	ch, pending := inFlight[tr]
	if !pending {
		ch = make(chan recvResult, 1)
		inFlight[tr] = ch
		go func() {
			data, from, ok := tr.Receive()
			ch <- recvResult{data: data, from: from, ok: ok}
		}()
	}
	select {
	case r := <-ch:
		delete(inFlight, tr)
		return r, true
	case <-time.After(timeout):
		return recvResult{}, false
	}
}

// settle drains every peer's inbox round-robin until a full pass produces
// no further messages, simulating each peer's network task running to
// quiescence for one step of the protocol. It does not call Tick, so it
// never triggers retransmission on its own. The returned map counts every
// delivered message by message_type, so tests can assert on the wire
// conversation itself and not just the resulting state.
func settle(t *testing.T, peers []testPeer) map[string]int {
	t.Helper()
	delivered := make(map[string]int)
	for {
		progressed := false
		for _, p := range peers {
			for {
				r, ok := recvWithTimeout(p.tr, 20*time.Millisecond)
				if !ok {
					break
				}
				if fields, err := codec.Decode(r.data); err == nil {
					delivered[fields["message_type"]]++
				}
				p.engine.HandleDatagram(r.data, r.from)
				progressed = true
			}
		}
		if !progressed {
			return delivered
		}
	}
}

func normalCreature(name string) *model.Creature {
	return &model.Creature{
		Name: name, MaxHP: 20, HP: 20,
		Attack: 10, Defense: 10, SpecialAttack: 10, SpecialDefense: 10,
		Types:         []string{"normal"},
		Effectiveness: map[string]float64{},
	}
}

func TestHandshakeAndSetupCompletes(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	host.engine.Session.Mu.Lock()
	hostSeed := host.engine.Session.RNG.Intn(1_000_000)
	hostPhase := host.engine.Session.Phase
	host.engine.Session.Mu.Unlock()

	joiner.engine.Session.Mu.Lock()
	joinerSeed := joiner.engine.Session.RNG.Intn(1_000_000)
	joinerPhase := joiner.engine.Session.Phase
	joiner.engine.Session.Mu.Unlock()

	if hostPhase != PhaseWaitingForSetup {
		t.Errorf("host phase = %s, want %s", hostPhase, PhaseWaitingForSetup)
	}
	if joinerPhase != PhaseWaitingForSetup {
		t.Errorf("joiner phase = %s, want %s", joinerPhase, PhaseWaitingForSetup)
	}
	if hostSeed != joinerSeed {
		t.Errorf("rng diverged after handshake: host drew %d, joiner drew %d", hostSeed, joinerSeed)
	}

	if err := host.engine.SubmitCreature(normalCreature("a"), "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(normalCreature("b"), "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	host.engine.Session.Mu.Lock()
	defer host.engine.Session.Mu.Unlock()
	if host.engine.Session.Phase != PhaseWaitingForMove {
		t.Errorf("host phase after setup = %s, want %s", host.engine.Session.Phase, PhaseWaitingForMove)
	}
	if host.engine.Session.TurnOwner != model.TurnLocal {
		t.Errorf("host turn owner = %s, want LOCAL (host moves first)", host.engine.Session.TurnOwner)
	}

	joiner.engine.Session.Mu.Lock()
	defer joiner.engine.Session.Mu.Unlock()
	if joiner.engine.Session.TurnOwner != model.TurnRemote {
		t.Errorf("joiner turn owner = %s, want REMOTE", joiner.engine.Session.TurnOwner)
	}
}

func TestOneHitKOTriggersGameOver(t *testing.T) {
	net := transport.NewNetwork()
	move := &model.Move{Name: "inferno", Power: 50, DamageCategory: model.CategorySpecial, Type: "fire"}
	moves := newTestMoveCatalog(move)

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	attacker := &model.Creature{
		Name: "emberling", MaxHP: 20, HP: 20,
		Attack: 10, Defense: 10, SpecialAttack: 200, SpecialDefense: 10,
		Types: []string{"fire"}, Effectiveness: map[string]float64{},
	}
	defender := &model.Creature{
		Name: "tidalon", MaxHP: 10, HP: 10,
		Attack: 10, Defense: 10, SpecialAttack: 10, SpecialDefense: 1,
		Types:         []string{"water"},
		Effectiveness: map[string]float64{"fire": 2.0},
	}

	if err := host.engine.SubmitCreature(attacker, "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(defender, "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := host.engine.AnnounceAttack("inferno"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	delivered := settle(t, []testPeer{host, joiner})

	// Matching reports are confirmed by both sides before either raises
	// GAME_OVER.
	if delivered[MsgCalculationConfirm] != 2 {
		t.Errorf("CALCULATION_CONFIRM delivered %d times, want 2 (one per side)", delivered[MsgCalculationConfirm])
	}
	if delivered[MsgGameOver] == 0 {
		t.Error("no GAME_OVER delivered")
	}

	host.engine.Session.Mu.Lock()
	hostPhase := host.engine.Session.Phase
	hostRunning := host.engine.Session.Running
	host.engine.Session.Mu.Unlock()

	joiner.engine.Session.Mu.Lock()
	joinerHP := joiner.engine.Session.LocalPokemon.HP
	joinerPhase := joiner.engine.Session.Phase
	joiner.engine.Session.Mu.Unlock()

	if joinerHP != 0 {
		t.Errorf("defender hp = %d, want 0 (one-hit KO)", joinerHP)
	}
	if hostPhase != PhaseGameOver {
		t.Errorf("host phase = %s, want %s", hostPhase, PhaseGameOver)
	}
	if joinerPhase != PhaseGameOver {
		t.Errorf("joiner phase = %s, want %s", joinerPhase, PhaseGameOver)
	}
	if hostRunning {
		t.Errorf("host.Running = true, want false after GAME_OVER")
	}
}

func TestRetransmissionRecoversFromDroppedSetup(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	host.engine.reliability.Timeout = 10 * time.Millisecond
	joiner.engine.reliability.Timeout = 10 * time.Millisecond

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	// Drop the first BATTLE_SETUP copy host sends to joiner; it must be
	// retransmitted once the reliability timeout elapses.
	net.DropNext(joinerAddr, 1)

	if err := host.engine.SubmitCreature(normalCreature("a"), "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(normalCreature("b"), "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	joiner.engine.Session.Mu.Lock()
	incomplete := joiner.engine.Session.RemotePokemon == nil
	joiner.engine.Session.Mu.Unlock()
	if !incomplete {
		t.Fatalf("joiner saw BATTLE_SETUP despite the simulated drop; test is not exercising retransmission")
	}

	time.Sleep(20 * time.Millisecond)
	if err := host.engine.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	joiner.engine.Session.Mu.Lock()
	defer joiner.engine.Session.Mu.Unlock()
	if joiner.engine.Session.RemotePokemon == nil {
		t.Errorf("joiner never received the retransmitted BATTLE_SETUP")
	}
	if joiner.engine.Session.Phase != PhaseWaitingForMove {
		t.Errorf("joiner phase = %s, want %s after retransmission", joiner.engine.Session.Phase, PhaseWaitingForMove)
	}
}

func TestRetryExhaustionRaisesReliabilityError(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	host.engine.reliability.Timeout = 5 * time.Millisecond
	host.engine.reliability.MaxRetries = 2

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := host.engine.SubmitCreature(normalCreature("a"), "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(normalCreature("b"), "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	// Every message host sends to joiner from here on is lost forever.
	net.DropNext(joinerAddr, -1)

	if err := host.engine.AnnounceAttack("tackle"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}

	var tickErr error
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(6 * time.Millisecond)
		if err := host.engine.Tick(); err != nil {
			tickErr = err
			break
		}
	}

	if tickErr == nil {
		t.Fatalf("expected a ReliabilityError after retry exhaustion, got none")
	}
	if _, ok := tickErr.(*reliability.ReliabilityError); !ok {
		t.Errorf("error type = %T, want *reliability.ReliabilityError", tickErr)
	}
}

// TestDiscrepancyResolutionAttackerAuthority gives the two sides move
// catalogs that disagree on a move's power, standing in for a one-off
// computation fault on the defender's side without reaching into engine
// internals. The attacker's
// authoritative numbers must win, the defender's hp is overwritten to
// match, and both sides advance the turn without a spurious GAME_OVER.
func TestDiscrepancyResolutionAttackerAuthority(t *testing.T) {
	net := transport.NewNetwork()
	hostMoves := newTestMoveCatalog(&model.Move{Name: "ember", Power: 40, DamageCategory: model.CategorySpecial, Type: "fire"})
	joinerMoves := newTestMoveCatalog(&model.Move{Name: "ember", Power: 60, DamageCategory: model.CategorySpecial, Type: "fire"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", hostMoves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", joinerMoves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	attacker := &model.Creature{
		Name: "emberling", MaxHP: 100, HP: 100,
		Attack: 10, Defense: 10, SpecialAttack: 50, SpecialDefense: 10,
		Types: []string{"fire"}, Effectiveness: map[string]float64{},
	}
	defender := &model.Creature{
		Name: "tidalon", MaxHP: 200, HP: 200,
		Attack: 10, Defense: 10, SpecialAttack: 10, SpecialDefense: 25,
		Types: []string{"water"}, Effectiveness: map[string]float64{},
	}

	if err := host.engine.SubmitCreature(attacker, "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(defender, "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := host.engine.AnnounceAttack("ember"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	host.engine.Session.Mu.Lock()
	hostPhase := host.engine.Session.Phase
	hostTurnOwner := host.engine.Session.TurnOwner
	// The attacker clears its per-turn reports when it self-advances, so its
	// authoritative numbers are read off its own view of the defender.
	hostDefender := host.engine.Session.RemotePokemon
	host.engine.Session.Mu.Unlock()

	if hostDefender == nil {
		t.Fatalf("host has no view of the defender")
	}
	// (40 * 50 * 1.0) / 25 = 80 damage, floored.
	if dealt := hostDefender.MaxHP - hostDefender.HP; dealt != 80 {
		t.Fatalf("test setup sanity check failed: host damage = %d, want 80", dealt)
	}
	if hostDefender.HP != 120 {
		t.Fatalf("test setup sanity check failed: host defender_hp_remaining = %d, want 120", hostDefender.HP)
	}
	if hostPhase != PhaseWaitingForMove {
		t.Errorf("host phase after discrepancy = %s, want %s (attacker self-advances)", hostPhase, PhaseWaitingForMove)
	}
	if hostTurnOwner != model.TurnRemote {
		t.Errorf("host turn owner after discrepancy = %s, want REMOTE", hostTurnOwner)
	}

	joiner.engine.Session.Mu.Lock()
	defer joiner.engine.Session.Mu.Unlock()
	if joiner.engine.Session.LocalPokemon.HP != hostDefender.HP {
		t.Errorf("joiner defender hp = %d, want the attacker's authoritative %d (own mismatched calc must be overwritten)",
			joiner.engine.Session.LocalPokemon.HP, hostDefender.HP)
	}
	if joiner.engine.Session.Phase != PhaseWaitingForMove {
		t.Errorf("joiner phase after discrepancy = %s, want %s", joiner.engine.Session.Phase, PhaseWaitingForMove)
	}
	if joiner.engine.Session.TurnOwner != model.TurnLocal {
		t.Errorf("joiner turn owner after discrepancy = %s, want LOCAL", joiner.engine.Session.TurnOwner)
	}
}

// playOneTurn drives host's attack through to both sides back at
// WAITING_FOR_MOVE, so duplicate-delivery tests start from a settled turn.
func playOneTurn(t *testing.T, host, joiner testPeer, moveName string) {
	t.Helper()
	if err := host.engine.AnnounceAttack(moveName); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	settle(t, []testPeer{host, joiner})
}

func TestDuplicateCalculationConfirmDoesNotDoubleAdvance(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 10, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	a := normalCreature("a")
	a.MaxHP, a.HP = 100, 100
	b := normalCreature("b")
	b.MaxHP, b.HP = 100, 100
	if err := host.engine.SubmitCreature(a, "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(b, "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	playOneTurn(t, host, joiner, "tackle")

	host.engine.Session.Mu.Lock()
	ownerAfterTurn := host.engine.Session.TurnOwner
	host.engine.Session.Mu.Unlock()
	if ownerAfterTurn != model.TurnRemote {
		t.Fatalf("host turn owner after turn = %s, want REMOTE", ownerAfterTurn)
	}

	// Simulated duplicate delivery: the peer's CONFIRM arrives again after
	// the turn already advanced. It must be ACKed but change nothing.
	dup := codec.Encode(codec.Fields{
		"message_type":    MsgCalculationConfirm,
		"sequence_number": "999",
	})
	host.engine.HandleDatagram(dup, joinerAddr)

	host.engine.Session.Mu.Lock()
	defer host.engine.Session.Mu.Unlock()
	if host.engine.Session.TurnOwner != ownerAfterTurn {
		t.Errorf("duplicate CALCULATION_CONFIRM flipped turn owner to %s", host.engine.Session.TurnOwner)
	}
	if host.engine.Session.Phase != PhaseWaitingForMove {
		t.Errorf("phase after duplicate CONFIRM = %s, want %s", host.engine.Session.Phase, PhaseWaitingForMove)
	}
}

func TestDuplicateHandshakeRequestDoesNotResetBattle(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := host.engine.SubmitCreature(normalCreature("a"), "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(normalCreature("b"), "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	dup := codec.Encode(codec.Fields{
		"message_type":    MsgHandshakeRequest,
		"sequence_number": "999",
	})
	host.engine.HandleDatagram(dup, joinerAddr)

	host.engine.Session.Mu.Lock()
	defer host.engine.Session.Mu.Unlock()
	if host.engine.Session.Phase != PhaseWaitingForMove {
		t.Errorf("duplicate HANDSHAKE_REQUEST reset phase to %s", host.engine.Session.Phase)
	}
}

func TestSpectatorAppliesRelayedResolutionRequest(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	spectator := newTestPeer(net, spectatorAddr, model.RoleSpectator, "brock", moves)
	defer spectator.tr.Close()

	// Seed the view the relayed BATTLE_SETUPs would have built.
	a := normalCreature("a")
	b := normalCreature("b")
	spectator.engine.Session.Mu.Lock()
	spectator.engine.Session.RemotePokemon = a
	spectator.engine.Session.LocalPokemon = b
	spectator.engine.Session.Mu.Unlock()

	data := codec.Encode(codec.Fields{
		"message_type":          MsgResolutionRequest,
		"attacker":              "a",
		"move_used":             "tackle",
		"damage_dealt":          "7",
		"defender_hp_remaining": "13",
		"sequence_number":       "5",
	})
	spectator.engine.HandleDatagram(data, hostAddr)

	spectator.engine.Session.Mu.Lock()
	defer spectator.engine.Session.Mu.Unlock()
	if b.HP != 13 {
		t.Errorf("spectator view of defender hp = %d, want the resolved 13", b.HP)
	}
	if a.HP != a.MaxHP {
		t.Errorf("spectator view of attacker hp = %d, want untouched %d (no remaining_health on the wire)", a.HP, a.MaxHP)
	}
}

func TestHostRelaysCalculationReportToSpectators(t *testing.T) {
	net := transport.NewNetwork()
	move := &model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"}
	moves := newTestMoveCatalog(move)

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	spectator := newTestPeer(net, spectatorAddr, model.RoleSpectator, "brock", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()
	defer spectator.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := spectator.engine.RequestSpectate(hostAddr, "brock"); err != nil {
		t.Fatalf("RequestSpectate: %v", err)
	}
	settle(t, []testPeer{host, spectator})

	if err := host.engine.SubmitCreature(normalCreature("a"), "{}"); err != nil {
		t.Fatalf("host SubmitCreature: %v", err)
	}
	if err := joiner.engine.SubmitCreature(normalCreature("b"), "{}"); err != nil {
		t.Fatalf("joiner SubmitCreature: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	// Drain whatever the spectator already received from the relayed setup
	// exchange so the assertions below only see the turn messages.
	for {
		if _, ok := recvWithTimeout(spectator.tr, 20*time.Millisecond); !ok {
			break
		}
	}

	if err := host.engine.AnnounceAttack("tackle"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	sawCalcReport := false
	for {
		r, ok := recvWithTimeout(spectator.tr, 50*time.Millisecond)
		if !ok {
			break
		}
		fields, err := codec.Decode(r.data)
		if err != nil {
			t.Fatalf("decode relayed datagram: %v", err)
		}
		if fields["message_type"] == MsgCalculationReport {
			sawCalcReport = true
			if _, hasSeq := fields["sequence_number"]; !hasSeq {
				t.Error("relayed CALCULATION_REPORT missing its own fresh sequence_number")
			}
		}
	}
	if !sawCalcReport {
		t.Fatalf("spectator never received a relayed CALCULATION_REPORT")
	}
}

func TestHostRelaysChatToSpectators(t *testing.T) {
	net := transport.NewNetwork()
	moves := newTestMoveCatalog(&model.Move{Name: "tackle", Power: 35, DamageCategory: model.CategoryPhysical, Type: "normal"})

	host := newTestPeer(net, hostAddr, model.RoleHost, "ash", moves)
	joiner := newTestPeer(net, joinerAddr, model.RoleJoiner, "misty", moves)
	spectator := newTestPeer(net, spectatorAddr, model.RoleSpectator, "brock", moves)
	defer host.tr.Close()
	defer joiner.tr.Close()
	defer spectator.tr.Close()

	if err := joiner.engine.Connect(hostAddr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	settle(t, []testPeer{host, joiner})

	if err := spectator.engine.RequestSpectate(hostAddr, "brock"); err != nil {
		t.Fatalf("RequestSpectate: %v", err)
	}
	settle(t, []testPeer{host, spectator})

	host.engine.Session.Mu.Lock()
	_, registered := host.engine.Session.Spectators[spectatorAddr]
	host.engine.Session.Mu.Unlock()
	if !registered {
		t.Fatalf("host never registered the spectator")
	}

	if err := joiner.engine.SendChat(ContentTypeText, "hello from misty"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	data, from, ok := host.tr.Receive()
	if !ok {
		t.Fatalf("host never received the chat message")
	}
	host.engine.HandleDatagram(data, from)

	r, ok := recvWithTimeout(spectator.tr, 200*time.Millisecond)
	if !ok {
		t.Fatalf("spectator never received the relayed chat message")
	}

	fields, err := codec.Decode(r.data)
	if err != nil {
		t.Fatalf("decode relayed datagram: %v", err)
	}
	if fields["message_type"] != MsgChatMessage {
		t.Errorf("relayed message_type = %q, want %s", fields["message_type"], MsgChatMessage)
	}
	if fields["message_text"] != "hello from misty" {
		t.Errorf("relayed message_text = %q, want %q", fields["message_text"], "hello from misty")
	}
	if _, hasSeq := fields["sequence_number"]; !hasSeq {
		t.Error("relayed datagram missing its own fresh sequence_number")
	}
}
