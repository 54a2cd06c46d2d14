package protocol

import (
	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
)

// SendChat sends a CHAT_MESSAGE to the peer. Chat bypasses the turn/phase
// gating that governs battle messages: it is always permitted, even
// mid-turn or as a spectator. payload is the
// message text for ContentTypeText or base64 sticker data for
// ContentTypeSticker.
func (e *Engine) SendChat(contentType, payload string) error {
	e.Session.Mu.Lock()
	peerAddr := e.Session.PeerAddr
	senderName := e.Session.LocalName
	e.Session.Mu.Unlock()

	if peerAddr == nil {
		return ErrNotPeerRole
	}
	if contentType == "" {
		contentType = ContentTypeText
	}

	fields := codec.Fields{
		"message_type": MsgChatMessage,
		"sender_name":  senderName,
		"content_type": contentType,
	}
	if contentType == ContentTypeSticker {
		fields["sticker_data"] = payload
	} else {
		fields["message_text"] = payload
	}

	e.sendReliable(fields, *peerAddr)
	return nil
}

// handleChatMessage implements the host's relay rule: chat arriving from
// the battling peer is forwarded to
// every spectator; chat arriving from a spectator is forwarded to the
// battling peer. Non-host roles just surface the message to the driver.
func (e *Engine) handleChatMessage(fields codec.Fields, from model.Addr) {
	e.Session.Mu.Lock()
	defer e.Session.Mu.Unlock()

	if e.Session.Role != model.RoleHost {
		logChatMessage(fields)
		return
	}

	if _, isSpectator := e.Session.Spectators[from]; isSpectator {
		if peerAddr := e.Session.PeerAddr; peerAddr != nil {
			forward := make(codec.Fields, len(fields))
			for k, v := range fields {
				if k == "sequence_number" || k == "ack_number" {
					continue
				}
				forward[k] = v
			}
			e.sendReliableLocked(forward, *peerAddr)
		}
		return
	}

	logChatMessage(fields)
	// relayToSpectators already forwarded this datagram in HandleDatagram,
	// since it runs for every non-ACK message from the battling peer.
}

func logChatMessage(fields codec.Fields) {
	if fields["content_type"] == ContentTypeSticker {
		logger.Info("protocol: chat from %s: [sticker]", fields["sender_name"])
		return
	}
	logger.Info("protocol: chat from %s: %s", fields["sender_name"], fields["message_text"])
}
