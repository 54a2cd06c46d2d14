// Package protocol implements the PokeProtocol state machine: handshake,
// battle setup, the four-message turn protocol,
// discrepancy resolution, game over, chat passthrough, and host-mediated
// spectator relay.
package protocol

// Message type tags. These are the dispatch keys the engine switches on.
const (
	MsgHandshakeRequest   = "HANDSHAKE_REQUEST"
	MsgHandshakeResponse  = "HANDSHAKE_RESPONSE"
	MsgSpectatorRequest   = "SPECTATOR_REQUEST"
	MsgBattleSetup        = "BATTLE_SETUP"
	MsgAttackAnnounce     = "ATTACK_ANNOUNCE"
	MsgDefenseAnnounce    = "DEFENSE_ANNOUNCE"
	MsgCalculationReport  = "CALCULATION_REPORT"
	MsgCalculationConfirm = "CALCULATION_CONFIRM"
	MsgResolutionRequest  = "RESOLUTION_REQUEST"
	MsgGameOver           = "GAME_OVER"
	MsgChatMessage        = "CHAT_MESSAGE"
	MsgAck                = "ACK"
	MsgGameAnnouncement   = "GAME_ANNOUNCEMENT"
)

// ChatContentType values.
const (
	ContentTypeText    = "TEXT"
	ContentTypeSticker = "STICKER"
)

// requiredFields lists the fields (beyond message_type and sequence_number)
// each message type must carry. SPECTATOR_REQUEST
// and CHAT_MESSAGE are not listed: their handlers read the fields they use
// without a required-field check.
var requiredFields = map[string][]string{
	MsgHandshakeResponse:  {"seed"},
	MsgBattleSetup:        {"communication_mode", "pokemon_name", "pokemon", "stat_boosts", "trainer_name"},
	MsgAttackAnnounce:     {"move_name"},
	MsgCalculationReport:  {"attacker", "move_used", "remaining_health", "damage_dealt", "defender_hp_remaining", "status_message"},
	MsgResolutionRequest:  {"attacker", "move_used", "damage_dealt", "defender_hp_remaining"},
	MsgGameOver:           {"winner", "loser"},
	MsgAck:                {"ack_number"},
}
