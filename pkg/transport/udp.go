package transport

import (
	"net"
	"time"

	"pokeproto-go/internal/model"
	"pokeproto-go/pkg/logger"
)

// UDPTransport binds a single local UDP endpoint and implements Transport
// over it. One net.UDPConn serves the whole process.
type UDPTransport struct {
	conn        *net.UDPConn
	readTimeout time.Duration
}

// NewUDPTransport binds host:port and returns a ready Transport.
// readTimeout bounds Receive; roughly 100ms gives the reliability tick a
// natural cadence.
func NewUDPTransport(host string, port int, readTimeout time.Duration) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn, readTimeout: readTimeout}, nil
}

func (u *UDPTransport) Send(data []byte, addr model.Addr) bool {
	if len(data) > MaxDatagramSize {
		logger.Error("transport: datagram of %d bytes exceeds max size, dropping", len(data))
		return false
	}

	udpAddr := &net.UDPAddr{IP: net.ParseIP(addr.IP), Port: addr.Port}
	_, err := u.conn.WriteToUDP(data, udpAddr)
	if err != nil {
		logger.Warn("transport: send to %s failed: %v", addr, err)
		return false
	}
	return true
}

func (u *UDPTransport) Receive() ([]byte, model.Addr, bool) {
	buf := make([]byte, MaxDatagramSize)

	if err := u.conn.SetReadDeadline(time.Now().Add(u.readTimeout)); err != nil {
		logger.Warn("transport: failed to set read deadline: %v", err)
	}

	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, model.Addr{}, false
		}
		logger.Warn("transport: receive error: %v", err)
		return nil, model.Addr{}, false
	}

	data := make([]byte, n)
	copy(data, buf[:n])
	return data, model.Addr{IP: from.IP.String(), Port: from.Port}, true
}

func (u *UDPTransport) Close() error {
	return u.conn.Close()
}

// LocalAddr reports the bound local address.
func (u *UDPTransport) LocalAddr() model.Addr {
	a := u.conn.LocalAddr().(*net.UDPAddr)
	return model.Addr{IP: a.IP.String(), Port: a.Port}
}
