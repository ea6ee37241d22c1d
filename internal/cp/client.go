package cp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/cpnet/internal/observability"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol"
	"github.com/danmuck/cpnet/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ClientConfig struct {
	CommandServer phy.Addr
	CookieServer  phy.Addr
	Session       session.Config
	// IDs may be shared between clients of one process; nil gives the client its own.
	IDs *session.IDRegistry
	Now func() time.Time
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Session: session.DefaultConfig(),
	}
}

// Client runs the cookie exchange and the command send/receive cycle.
// A Client is not safe for concurrent use.
type Client struct {
	endpoint
	cfg       ClientConfig
	ids       *session.IDRegistry
	rng       *rand.Rand
	sessionID string

	cookie    int
	hasCookie bool

	pending int
	sentAt  time.Time
}

func NewClient(tr phy.Transport, cfg ClientConfig) (*Client, error) {
	if tr == nil {
		return nil, ErrTransportRequired
	}
	if strings.TrimSpace(cfg.CommandServer.Host) == "" || cfg.CommandServer.Port == 0 {
		return nil, fmt.Errorf("%w: command server", ErrAddressRequired)
	}
	if strings.TrimSpace(cfg.CookieServer.Host) == "" || cfg.CookieServer.Port == 0 {
		return nil, fmt.Errorf("%w: cookie server", ErrAddressRequired)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if cfg.IDs == nil {
		cfg.IDs = session.NewIDRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sessionID := uuid.NewString()
	logger := log.Logger.With().Str("session", sessionID).Logger()
	return &Client{
		endpoint:  newEndpoint(tr, RoleClient, cfg.Session.ResponseTimeout, logger),
		cfg:       cfg,
		ids:       cfg.IDs,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sessionID: sessionID,
	}, nil
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Cookie returns the held session cookie.
func (c *Client) Cookie() (int, bool) {
	return c.cookie, c.hasCookie
}

// SetCookie installs a cookie obtained out of band.
func (c *Client) SetCookie(value int) {
	c.cookie = value
	c.hasCookie = true
}

// DropCookie forgets the held cookie so the next Send requests a new one.
func (c *Client) DropCookie() {
	c.cookie = 0
	c.hasCookie = false
}

// AcquireCookie requests a session cookie from the cookie server.
// Each attempt sends one request and waits for one response; every attempt
// that yields no CookieResponse counts against the budget.
func (c *Client) AcquireCookie(ctx context.Context) (int, error) {
	attempts := c.cfg.Session.CookieAttempts
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := sleepCtx(ctx, session.ResendDelay(c.cfg.Session.Backoff, attempt, c.rng)); err != nil {
			return 0, err
		}
		if err := c.send(ctx, protocol.CookieRequest{}, c.cfg.CookieServer); err != nil {
			return 0, err
		}

		resp, err := c.awaitCookieResponse(ctx)
		if err != nil {
			if !recoverable(err) {
				return 0, err
			}
			last = err
			c.logger.Debug().Int("attempt", attempt).Err(err).Msg("cookie response not received")
			continue
		}
		if !resp.Success {
			c.record(observability.FrameRejected)
			c.logger.Warn().Str("reason", resp.Reason).Msg("cookie request refused")
			return 0, &CookieRequestError{Attempts: attempt, Reason: resp.Reason}
		}
		c.record(observability.FrameOK)
		c.SetCookie(resp.Value)
		c.logger.Info().Int("attempt", attempt).Msg("cookie acquired")
		return resp.Value, nil
	}
	c.logger.Warn().Int("attempts", attempts).Err(last).Msg("cookie request exhausted")
	return 0, &CookieRequestError{Attempts: attempts, Last: last}
}

func (c *Client) awaitCookieResponse(ctx context.Context) (protocol.CookieResponse, error) {
	in, err := c.receive(ctx)
	if err != nil {
		return protocol.CookieResponse{}, err
	}
	resp, ok := in.msg.(protocol.CookieResponse)
	if !ok {
		c.record(observability.FrameUnexpectedKind)
		return protocol.CookieResponse{}, fmt.Errorf("%w: %w: got %s", protocol.ErrFrame, protocol.ErrUnexpectedKind, in.msg.Kind())
	}
	return resp, nil
}

// Send validates text, ensures a cookie is held, and frames one command to
// the command server under a fresh correlation id. It does not wait.
func (c *Client) Send(ctx context.Context, text string) error {
	cmd, msg, err := protocol.ParseCommand(text)
	if err != nil {
		return err
	}
	if !c.hasCookie {
		if _, err := c.AcquireCookie(ctx); err != nil {
			return err
		}
	}

	// A new send supersedes any response cycle left unfinished.
	c.finish(c.pending)

	now := c.cfg.Now()
	id, err := c.ids.Allocate(text, now)
	if err != nil {
		return err
	}
	req := protocol.CommandRequest{ID: id, Cookie: c.cookie, Type: cmd, Message: msg}
	if err := c.send(ctx, req, c.cfg.CommandServer); err != nil {
		c.ids.Release(id)
		return err
	}
	c.pending = id
	c.sentAt = now
	c.logger.Debug().Int("command_id", id).Str("command", cmd.String()).Msg("command sent")
	return nil
}

// Receive waits for the response correlated with the most recent Send.
// Timeouts, undecodable or foreign frames, responses for other ids, and
// "error" responses each consume one attempt.
func (c *Client) Receive(ctx context.Context) (protocol.CommandResponse, error) {
	id := c.pending
	if id == 0 {
		return protocol.CommandResponse{}, ErrNoPendingCommand
	}

	attempts := c.cfg.Session.ReceiveAttempts
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.awaitCommandResponse(ctx, id)
		if err == nil {
			c.complete(id, observability.FrameOK)
			return resp, nil
		}
		if !consumesAttempt(err) {
			c.complete(id, observability.FrameTransportError)
			return protocol.CommandResponse{}, err
		}
		last = err
		c.ids.MarkAttempt(id, c.cfg.Now(), err.Error())
		c.logger.Debug().Int("command_id", id).Int("attempt", attempt).Err(err).Msg("response attempt consumed")
	}

	c.complete(id, observability.FrameTimeout)
	c.logger.Warn().Int("command_id", id).Int("attempts", attempts).Err(last).Msg("command response exhausted")
	return protocol.CommandResponse{}, &ProtocolTimeoutError{CommandID: id, Attempts: attempts, Last: last}
}

// Exchange sends text and waits for its response.
func (c *Client) Exchange(ctx context.Context, text string) (protocol.CommandResponse, error) {
	if err := c.Send(ctx, text); err != nil {
		return protocol.CommandResponse{}, err
	}
	return c.Receive(ctx)
}

func (c *Client) awaitCommandResponse(ctx context.Context, id int) (protocol.CommandResponse, error) {
	in, err := c.receive(ctx)
	if err != nil {
		return protocol.CommandResponse{}, err
	}
	resp, ok := in.msg.(protocol.CommandResponse)
	if !ok {
		c.record(observability.FrameUnexpectedKind)
		return protocol.CommandResponse{}, fmt.Errorf("%w: %w: got %s", protocol.ErrFrame, protocol.ErrUnexpectedKind, in.msg.Kind())
	}
	if resp.ID != id {
		c.record(observability.FrameIDMismatch)
		return protocol.CommandResponse{}, fmt.Errorf("%w: want=%d got=%d", ErrIDMismatch, id, resp.ID)
	}
	if !resp.OK {
		c.record(observability.FrameRejected)
		return protocol.CommandResponse{}, fmt.Errorf("%w: command %d", ErrCommandRejected, id)
	}
	c.record(observability.FrameOK)
	return resp, nil
}

// consumesAttempt reports whether a receive failure counts against the
// response budget instead of ending the exchange.
func consumesAttempt(err error) bool {
	return recoverable(err) ||
		errors.Is(err, ErrIDMismatch) ||
		errors.Is(err, ErrCommandRejected)
}

func (c *Client) complete(id int, result string) {
	observability.RecordCommandExchange(result, c.cfg.Now().Sub(c.sentAt))
	c.finish(id)
}

func (c *Client) finish(id int) {
	if id == 0 {
		return
	}
	c.ids.Release(id)
	if c.pending == id {
		c.pending = 0
	}
}
