package protocol

import (
	"github.com/google/uuid"
	"github.com/rs/xid"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
	"pokeproto-go/pkg/metrics"
	"pokeproto-go/pkg/reliability"
	"pokeproto-go/pkg/transport"
)

// Engine wires the session to its transport and reliability layer and
// dispatches every inbound datagram, sitting between the UDP socket and
// the per-message-type handlers.
type Engine struct {
	Session *Session

	transport   transport.Transport
	reliability *reliability.Layer
	metrics     *metrics.Registry
	moves       model.MoveCatalog
}

// NewEngine builds an Engine for a fresh Session. Pass a nil
// metrics.Registry to run without instrumentation. moves resolves the
// move_name carried on the wire into the Move definition needed by the
// damage engine; the catalog itself is supplied by the driver.
func NewEngine(session *Session, tr transport.Transport, reg *metrics.Registry, moves model.MoveCatalog) *Engine {
	return &Engine{
		Session:     session,
		transport:   tr,
		reliability: reliability.New(reg),
		metrics:     reg,
		moves:       moves,
	}
}

// dispatchTable maps message_type to its handler.
type handlerFunc func(e *Engine, fields codec.Fields, from model.Addr)

var dispatchTable = map[string]handlerFunc{
	MsgHandshakeRequest:   (*Engine).handleHandshakeRequest,
	MsgHandshakeResponse:  (*Engine).handleHandshakeResponse,
	MsgSpectatorRequest:   (*Engine).handleSpectatorRequest,
	MsgBattleSetup:        (*Engine).handleBattleSetup,
	MsgAttackAnnounce:     (*Engine).handleAttackAnnounce,
	MsgDefenseAnnounce:    (*Engine).handleDefenseAnnounce,
	MsgCalculationReport:  (*Engine).handleCalculationReport,
	MsgCalculationConfirm: (*Engine).handleCalculationConfirm,
	MsgResolutionRequest:  (*Engine).handleResolutionRequest,
	MsgGameOver:           (*Engine).handleGameOver,
	MsgChatMessage:        (*Engine).handleChatMessage,
}

// HandleDatagram decodes and processes one inbound datagram. Codec errors
// drop the datagram silently: no sequence was parsed, so no ACK is owed. ACK handling, sequence alignment, and relay happen here before
// dispatch so every handler can assume those concerns are done.
func (e *Engine) HandleDatagram(data []byte, from model.Addr) {
	e.metrics.IncReceived()

	fields, err := codec.Decode(data)
	if err != nil {
		logger.Warn("protocol: dropping malformed datagram from %s: %v", from, err)
		e.metrics.IncCodecError()
		return
	}

	msgType := fields["message_type"]

	if msgType == MsgAck {
		e.handleAck(fields, from)
		return
	}

	e.reliability.ObserveIncoming(e.transport, fields, from)

	e.Session.Mu.Lock()
	isHost := e.Session.Role == model.RoleHost
	peerAddr := e.Session.PeerAddr
	e.Session.Mu.Unlock()

	if isHost && peerAddr != nil && from == *peerAddr {
		e.relayToSpectators(fields)
	}

	handler, ok := dispatchTable[msgType]
	if !ok {
		logger.Debug("protocol: ignoring unknown message_type %q from %s", msgType, from)
		return
	}

	handler(e, fields, from)
}

func (e *Engine) handleAck(fields codec.Fields, from model.Addr) {
	n, err := codec.ParseIntField(fields, "ack_number")
	if err != nil {
		logger.Warn("protocol: ACK from %s missing/invalid ack_number: %v", from, err)
		return
	}
	e.reliability.HandleAck(uint64(n), from)
}

// Tick drives retransmission; a non-nil error is a ReliabilityError,
// fatal to the session.
func (e *Engine) Tick() error {
	return e.reliability.Tick(e.transport)
}

// sendReliable is the common path every handler uses to reply.
func (e *Engine) sendReliable(fields codec.Fields, addr model.Addr) (bool, uint64) {
	return e.reliability.SendReliable(e.transport, fields, addr)
}

// newSpectatorID mints the short sortable id assigned to each spectator
// on registration.
func newSpectatorID() string {
	return xid.New().String()
}

// newBattleID mints the uuid assigned to a session once its handshake
// completes.
func newBattleID() string {
	return uuid.New().String()
}
