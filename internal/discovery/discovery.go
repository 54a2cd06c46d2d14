// Package discovery implements the LAN peer-discovery side-channel: a
// host periodically broadcasts GAME_ANNOUNCEMENT datagrams
// on a well-known broadcast port, and a joiner listens for one to learn the
// host's game address. It is deliberately decoupled from the protocol
// engine: its only coupling to the core is handing a model.Addr to the
// joiner's Engine.Connect.
package discovery

import (
	"net"
	"strconv"
	"time"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/codec"
	"pokeproto-go/pkg/logger"
)

// DefaultBroadcastPort is the discovery side-channel's default port.
const DefaultBroadcastPort = 5556

// DefaultAnnounceInterval is how often a host re-broadcasts its presence.
const DefaultAnnounceInterval = 2 * time.Second

// Announcer periodically broadcasts GAME_ANNOUNCEMENT on the LAN so
// joiners can find the host without knowing its address in advance.
type Announcer struct {
	conn     *net.UDPConn
	hostName string
	gamePort int
	interval time.Duration
	stop     chan struct{}
}

// NewAnnouncer opens a UDP broadcast socket on broadcastPort. hostName and
// gamePort are carried verbatim in every GAME_ANNOUNCEMENT.
func NewAnnouncer(hostName string, gamePort, broadcastPort int) (*Announcer, error) {
	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	return &Announcer{
		conn:     conn,
		hostName: hostName,
		gamePort: gamePort,
		interval: DefaultAnnounceInterval,
		stop:     make(chan struct{}),
	}, nil
}

// Run broadcasts on a ticker until Stop is called. Intended to run in its
// own goroutine.
func (a *Announcer) Run() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.announceOnce()
		}
	}
}

func (a *Announcer) announceOnce() {
	fields := codec.Fields{
		"message_type": "GAME_ANNOUNCEMENT",
		"host_name":    a.hostName,
		"game_port":    strconv.Itoa(a.gamePort),
	}
	if _, err := a.conn.Write(codec.Encode(fields)); err != nil {
		logger.Warn("discovery: broadcast failed: %v", err)
	}
}

// Stop halts the announce loop and closes the broadcast socket.
func (a *Announcer) Stop() {
	close(a.stop)
	a.conn.Close()
}

// Found is one GAME_ANNOUNCEMENT observed by Listen.
type Found struct {
	HostName string
	Addr     model.Addr
}

// Listen blocks until one GAME_ANNOUNCEMENT is received on broadcastPort,
// or the read times out. A joiner calls this once to learn the host's
// game address before calling Engine.Connect.
func Listen(broadcastPort int, timeout time.Duration) (*Found, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: broadcastPort})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, err
		}

		fields, err := codec.Decode(buf[:n])
		if err != nil || fields["message_type"] != "GAME_ANNOUNCEMENT" {
			continue
		}

		port, err := codec.ParseIntField(fields, "game_port")
		if err != nil {
			continue
		}

		return &Found{
			HostName: fields["host_name"],
			Addr:     model.Addr{IP: from.IP.String(), Port: int(port)},
		}, nil
	}
}
