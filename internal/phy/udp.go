package phy

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// UDPTransport carries phy datagrams over one UDP socket.
type UDPTransport struct {
	conn  *net.UDPConn
	local Addr

	readMu sync.Mutex
	buf    []byte
}

var _ Transport = (*UDPTransport)(nil)

// ListenUDP binds a UDP socket on hostport ("host:port", port 0 picks one).
func ListenUDP(hostport string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	bound := conn.LocalAddr().(*net.UDPAddr)
	return &UDPTransport{
		conn:  conn,
		local: Addr{Host: bound.IP.String(), Port: bound.Port, Proto: ProtoPhy},
		buf:   make([]byte, MaxDatagramSize),
	}, nil
}

func (t *UDPTransport) LocalAddr() Addr {
	return t.local
}

func (t *UDPTransport) Send(ctx context.Context, payload []byte, to Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	datagram, err := encodeDatagram(to.Proto, payload)
	if err != nil {
		return err
	}
	raddr, err := net.ResolveUDPAddr("udp", to.HostPort())
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteToUDP(datagram, raddr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	log.Trace().Str("to", to.Key()).Int("bytes", len(datagram)).Msg("phy.udp send")
	return nil
}

func (t *UDPTransport) Receive(ctx context.Context, timeout time.Duration) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	t.readMu.Lock()
	defer t.readMu.Unlock()

	deadline := time.Now().Add(timeout)
	ctxBound := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
		ctxBound = true
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Envelope{}, ErrClosed
		}
		return Envelope{}, err
	}
	// Unblock the read as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, raddr, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		var netErr net.Error
		switch {
		case ctx.Err() != nil:
			return Envelope{}, ctx.Err()
		case errors.As(err, &netErr) && netErr.Timeout():
			// The socket can time out before ctx marks itself done.
			if ctxBound {
				return Envelope{}, context.DeadlineExceeded
			}
			return Envelope{}, ErrTimeout
		case errors.Is(err, net.ErrClosed):
			return Envelope{}, ErrClosed
		default:
			return Envelope{}, err
		}
	}

	proto, payload := decodeDatagram(t.buf[:n])
	out := make([]byte, len(payload))
	copy(out, payload)
	return Envelope{
		Payload: out,
		From:    Addr{Host: raddr.IP.String(), Port: raddr.Port, Proto: proto},
	}, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
