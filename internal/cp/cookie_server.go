package cp

import (
	"context"
	"errors"

	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/observability"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol"
	"github.com/danmuck/cpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// CookieServer hands out session cookies from a bounded store.
type CookieServer struct {
	endpoint
	store *cookie.Store
}

func NewCookieServer(tr phy.Transport, store *cookie.Store, cfg session.Config) (*CookieServer, error) {
	if tr == nil {
		return nil, ErrTransportRequired
	}
	if store == nil {
		store = cookie.NewStore(cookie.DefaultConfig())
	}
	cfg = cfg.WithDefaults()
	return &CookieServer{
		endpoint: newEndpoint(tr, RoleCookieServer, cfg.ResponseTimeout, log.Logger),
		store:    store,
	}, nil
}

func (s *CookieServer) Store() *cookie.Store {
	return s.store
}

// Serve answers cookie requests until ctx is done or the transport closes.
// Every frame that is not a well-formed CookieRequest is skipped.
func (s *CookieServer) Serve(ctx context.Context) error {
	s.logger.Info().Str("listen", s.tr.LocalAddr().HostPort()).Int("capacity", s.store.Capacity()).Msg("cookie server started")
	defer s.logger.Info().Msg("cookie server stopped")
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
			s.logger.Debug().Err(err).Msg("cookie server skipped frame")
		}
	}
}

// ServeOne handles at most one inbound frame.
func (s *CookieServer) ServeOne(ctx context.Context) error {
	in, err := s.receive(ctx)
	if err != nil {
		return err
	}
	if _, ok := in.msg.(protocol.CookieRequest); !ok {
		s.record(observability.FrameUnexpectedKind)
		return protocol.ErrUnexpectedKind
	}
	s.record(observability.FrameOK)

	clientID := in.env.From.Key()
	resp := s.store.Admit(clientID)
	result := "issued"
	if !resp.Success {
		result = resp.Reason
	}
	observability.RecordCookieAdmission(result, s.store.Len())
	s.logger.Info().Str("client", clientID).Str("result", result).Msg("cookie request answered")
	return s.send(ctx, resp, in.env.From)
}
