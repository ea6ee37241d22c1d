// Package node assembles one cpd process from its config: transports,
// the selected CP role, the optional co-located cookie server and the
// admin HTTP surface.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/cpnet/internal/admin"
	"github.com/danmuck/cpnet/internal/config"
	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/cp"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/danmuck/cpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ListenFunc binds a datagram transport on "host:port".
type ListenFunc func(hostport string) (phy.Transport, error)

func listenUDP(hostport string) (phy.Transport, error) {
	return phy.ListenUDP(hostport)
}

type Options struct {
	Config  config.NodeConfig
	Session session.Config
	// Out receives client results and command-server print output.
	Out io.Writer
	// Listen defaults to UDP.
	Listen ListenFunc
}

// Service runs one node until its context ends or, for clients, until the
// configured commands have been exchanged.
type Service struct {
	cfg     config.NodeConfig
	role    cp.Role
	session session.Config
	out     io.Writer
	listen  ListenFunc

	store *cookie.Store
	admin *admin.Server
}

func New(opts Options) (*Service, error) {
	cfg := opts.Config.WithDefaults()
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	role, err := cp.ParseRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	sess := opts.Session.WithDefaults()
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Listen == nil {
		opts.Listen = listenUDP
	}

	s := &Service{
		cfg:     cfg,
		role:    role,
		session: sess,
		out:     opts.Out,
		listen:  opts.Listen,
	}
	if role == cp.RoleCookieServer || cfg.Command.ServeCookies {
		storeCfg, err := cfg.CookieStoreConfig()
		if err != nil {
			return nil, err
		}
		s.store = cookie.NewStore(storeCfg)
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		s.admin = admin.New(admin.Config{
			NodeID:      cfg.ID,
			Role:        string(role),
			Addr:        cfg.AdminAddr,
			CORSOrigins: cfg.CorsOrigins,
		}, s.store)
	}
	return s, nil
}

func (s *Service) Role() cp.Role {
	return s.role
}

// Store is nil unless this node issues cookies.
func (s *Service) Store() *cookie.Store {
	return s.store
}

// Run blocks until ctx is done. A client node returns once its commands finish.
func (s *Service) Run(ctx context.Context) error {
	log.Info().Str("node", s.cfg.ID).Str("role", string(s.role)).Str("listen", s.cfg.Listen).Msg("node starting")
	switch s.role {
	case cp.RoleClient:
		return s.runClient(ctx)
	case cp.RoleCookieServer, cp.RoleCommandServer:
		return s.runServers(ctx)
	default:
		return fmt.Errorf("%w: %s", cp.ErrUnknownRole, s.role)
	}
}

func (s *Service) runServers(ctx context.Context) error {
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if s.store != nil {
		addr := s.cfg.Listen
		if s.role == cp.RoleCommandServer {
			addr = s.cfg.CookieServer
		}
		tr, err := s.listen(addr)
		if err != nil {
			return fmt.Errorf("listen cookie server %s: %w", addr, err)
		}
		closers = append(closers, tr)
		srv, err := cp.NewCookieServer(tr, s.store, s.session)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(srv.Serve(gctx)) })
	}

	if s.role == cp.RoleCommandServer {
		tr, err := s.listen(s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen command server %s: %w", s.cfg.Listen, err)
		}
		closers = append(closers, tr)
		ttl, err := s.cfg.CookieTTL()
		if err != nil {
			return err
		}
		cmdCfg := cp.CommandServerConfig{
			Session:   s.session,
			CookieTTL: ttl,
			Output:    s.out,
		}
		if s.store != nil {
			cmdCfg.Validator = s.store
		}
		srv, err := cp.NewCommandServer(tr, cmdCfg)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(srv.Serve(gctx)) })
	}

	if s.admin != nil {
		g.Go(func() error { return s.admin.Serve(gctx) })
		s.admin.SetReady(true)
	}
	return g.Wait()
}

func (s *Service) runClient(ctx context.Context) error {
	cookieAddr, commandAddr, err := s.cfg.ServerAddrs()
	if err != nil {
		return err
	}
	tr, err := s.listen(s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen client %s: %w", s.cfg.Listen, err)
	}
	defer tr.Close()

	client, err := cp.NewClient(tr, cp.ClientConfig{
		CookieServer:  cookieAddr,
		CommandServer: commandAddr,
		Session:       s.session,
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, text := range s.cfg.Commands {
		resp, err := client.Exchange(ctx, text)
		if err != nil {
			log.Warn().Str("session", client.SessionID()).Str("command", text).Err(err).Msg("command failed")
			fmt.Fprintf(s.out, "%s: error: %v\n", text, err)
			errs = append(errs, fmt.Errorf("%s: %w", text, err))
			if ctx.Err() != nil || errors.Is(err, cp.ErrCookieRequest) {
				break
			}
			continue
		}
		fmt.Fprintf(s.out, "%s: ok (id=%d)\n", text, resp.ID)
		if resp.Message != "" {
			fmt.Fprintln(s.out, resp.Message)
		}
	}
	return errors.Join(errs...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
