package cp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/danmuck/cpnet/internal/observability"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol"
	"github.com/danmuck/cpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// CookieValidator reports the remaining lifetime of a live cookie.
type CookieValidator interface {
	Remaining(value int) (time.Duration, bool)
}

type CommandServerConfig struct {
	Session session.Config
	// Validator rejects unknown cookies when set; nil accepts any cookie.
	Validator CookieValidator
	// CookieTTL is reported by status when no Validator is set.
	CookieTTL time.Duration
	// Output receives print text; nil logs it only.
	Output io.Writer
}

// StatusReport is the body of a status response.
type StatusReport struct {
	ProcessedCommands int64 `json:"processed_commands"`
	CookieTTLMillis   int64 `json:"cookie_ttl_ms"`
}

// CommandServer executes status and print commands.
type CommandServer struct {
	endpoint
	cfg       CommandServerConfig
	processed atomic.Int64
}

func NewCommandServer(tr phy.Transport, cfg CommandServerConfig) (*CommandServer, error) {
	if tr == nil {
		return nil, ErrTransportRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &CommandServer{
		endpoint: newEndpoint(tr, RoleCommandServer, cfg.Session.ResponseTimeout, log.Logger),
		cfg:      cfg,
	}, nil
}

// Processed reports how many commands have been executed.
func (s *CommandServer) Processed() int64 {
	return s.processed.Load()
}

// Serve answers command requests until ctx is done or the transport closes.
func (s *CommandServer) Serve(ctx context.Context) error {
	s.logger.Info().Str("listen", s.tr.LocalAddr().HostPort()).Bool("validate_cookies", s.cfg.Validator != nil).Msg("command server started")
	defer s.logger.Info().Int64("processed", s.Processed()).Msg("command server stopped")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.ServeOne(ctx)
		switch {
		case err == nil:
		case errors.Is(err, phy.ErrTimeout):
		case errors.Is(err, phy.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.logger.Debug().Err(err).Msg("command server skipped frame")
		}
	}
}

// ServeOne handles at most one inbound frame and sends at most one response.
func (s *CommandServer) ServeOne(ctx context.Context) error {
	in, err := s.receive(ctx)
	if err != nil {
		return err
	}
	req, ok := in.msg.(protocol.CommandRequest)
	if !ok {
		s.record(observability.FrameUnexpectedKind)
		return protocol.ErrUnexpectedKind
	}
	s.record(observability.FrameOK)

	resp := s.execute(req)
	observability.RecordCommandProcessed(req.Type.String(), resp.OK)
	s.logger.Info().
		Str("client", in.env.From.Key()).
		Int("command_id", req.ID).
		Str("command", req.Type.String()).
		Bool("ok", resp.OK).
		Msg("command answered")
	return s.send(ctx, resp, in.env.From)
}

func (s *CommandServer) execute(req protocol.CommandRequest) protocol.CommandResponse {
	ttl, ok := s.cookieTTL(req.Cookie)
	if !ok {
		s.logger.Warn().Int("command_id", req.ID).Msg("unknown or expired cookie")
		return protocol.CommandResponse{ID: req.ID}
	}

	switch req.Type {
	case protocol.CommandPrint:
		s.processed.Add(1)
		s.logger.Info().Str("text", req.Message).Msg("print")
		if s.cfg.Output != nil {
			if _, err := fmt.Fprintln(s.cfg.Output, req.Message); err != nil {
				s.logger.Warn().Err(err).Msg("print output failed")
				return protocol.CommandResponse{ID: req.ID}
			}
		}
		return protocol.CommandResponse{ID: req.ID, OK: true}
	case protocol.CommandStatus:
		processed := s.processed.Add(1)
		body, err := json.MarshalIndent(StatusReport{
			ProcessedCommands: processed,
			CookieTTLMillis:   ttl.Milliseconds(),
		}, "", "  ")
		if err != nil {
			return protocol.CommandResponse{ID: req.ID}
		}
		return protocol.CommandResponse{ID: req.ID, OK: true, Message: string(body)}
	default:
		return protocol.CommandResponse{ID: req.ID}
	}
}

func (s *CommandServer) cookieTTL(value int) (time.Duration, bool) {
	if s.cfg.Validator == nil {
		return s.cfg.CookieTTL, true
	}
	return s.cfg.Validator.Remaining(value)
}
