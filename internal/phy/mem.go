package phy

import (
	"context"
	"sync"
	"time"
)

const memInboxSize = 64

// MemNetwork is an in-process datagram network keyed by host:port.
// Sends to unknown endpoints or full inboxes are dropped, like UDP.
type MemNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*MemEndpoint
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		endpoints: make(map[string]*MemEndpoint),
	}
}

// Listen registers an endpoint at host:port.
func (n *MemNetwork) Listen(host string, port int) (*MemEndpoint, error) {
	addr := Addr{Host: host, Port: port, Proto: ProtoPhy}
	key := addr.HostPort()

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.endpoints[key]; exists {
		return nil, ErrAddrInUse
	}
	ep := &MemEndpoint{
		network: n,
		local:   addr,
		inbox:   make(chan Envelope, memInboxSize),
		closed:  make(chan struct{}),
	}
	n.endpoints[key] = ep
	return ep, nil
}

// Bound reports whether an endpoint is listening at host:port.
func (n *MemNetwork) Bound(host string, port int) bool {
	_, ok := n.lookup(Addr{Host: host, Port: port}.HostPort())
	return ok
}

func (n *MemNetwork) lookup(hostport string) (*MemEndpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[hostport]
	return ep, ok
}

func (n *MemNetwork) remove(hostport string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, hostport)
}

// MemEndpoint is one MemNetwork attachment.
type MemEndpoint struct {
	network *MemNetwork
	local   Addr
	inbox   chan Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Transport = (*MemEndpoint)(nil)

func (e *MemEndpoint) LocalAddr() Addr {
	return e.local
}

func (e *MemEndpoint) Send(ctx context.Context, payload []byte, to Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}
	if len(payload) > MaxDatagramSize {
		return ErrPayloadTooLarge
	}
	peer, ok := e.network.lookup(to.HostPort())
	if !ok {
		return nil
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	peer.Inject(Envelope{Payload: buf, From: e.local.WithProto(to.Proto)})
	return nil
}

// Inject queues env for this endpoint as if it arrived from env.From.
// It reports false when the datagram was dropped.
func (e *MemEndpoint) Inject(env Envelope) bool {
	select {
	case <-e.closed:
		return false
	default:
	}
	select {
	case e.inbox <- env:
		return true
	default:
		return false
	}
}

// Pending reports queued, unread datagrams.
func (e *MemEndpoint) Pending() int {
	return len(e.inbox)
}

func (e *MemEndpoint) Receive(ctx context.Context, timeout time.Duration) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-e.inbox:
		return env, nil
	case <-timer.C:
		return Envelope{}, ErrTimeout
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-e.closed:
		return Envelope{}, ErrClosed
	}
}

func (e *MemEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.network.remove(e.local.HostPort())
	})
	return nil
}
