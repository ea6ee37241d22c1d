package phy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTimeout         = errors.New("phy: receive timeout")
	ErrClosed          = errors.New("phy: transport closed")
	ErrInvalidAddr     = errors.New("phy: invalid address")
	ErrAddrInUse       = errors.New("phy: address in use")
	ErrPayloadTooLarge = errors.New("phy: payload too large")
)

// MaxDatagramSize bounds one phy datagram including its header.
const MaxDatagramSize = 4096

// ProtoID names the protocol a datagram payload belongs to.
type ProtoID string

const (
	ProtoPhy ProtoID = "phy"
	ProtoCP  ProtoID = "cp"
)

// Addr is a transport endpoint plus the protocol id carried in its envelope.
type Addr struct {
	Host  string
	Port  int
	Proto ProtoID
}

// ParseAddr parses "host:port" and tags it with proto.
func ParseAddr(hostport string, proto ProtoID) (Addr, error) {
	host, portRaw, err := net.SplitHostPort(strings.TrimSpace(hostport))
	if err != nil {
		return Addr{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddr, hostport, err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port < 0 || port > 65535 {
		return Addr{}, fmt.Errorf("%w: %q: bad port", ErrInvalidAddr, hostport)
	}
	return Addr{Host: host, Port: port, Proto: proto}, nil
}

// HostPort returns "host:port".
func (a Addr) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Key identifies a peer by endpoint and protocol id.
func (a Addr) Key() string {
	return string(a.Proto) + "://" + a.HostPort()
}

func (a Addr) String() string {
	return a.Key()
}

// WithProto returns a copy of a tagged with proto.
func (a Addr) WithProto(proto ProtoID) Addr {
	a.Proto = proto
	return a
}

// Envelope is one received datagram and its source.
type Envelope struct {
	Payload []byte
	From    Addr
}

// Transport is the datagram capability CP runs on.
type Transport interface {
	Send(ctx context.Context, payload []byte, to Addr) error
	// Receive blocks until a datagram arrives, the timeout elapses (ErrTimeout),
	// ctx is done, or the transport is closed (ErrClosed).
	Receive(ctx context.Context, timeout time.Duration) (Envelope, error)
	LocalAddr() Addr
	Close() error
}
