package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/cp"
	"github.com/danmuck/cpnet/internal/phy"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid node config")

const (
	DefaultCookieServer  = "127.0.0.1:4000"
	DefaultCommandServer = "127.0.0.1:4999"
)

// NodeConfig is the on-disk description of one cpd node.
type NodeConfig struct {
	ID            string       `toml:"id"`
	Role          string       `toml:"role"`
	Listen        string       `toml:"listen"`
	CookieServer  string       `toml:"cookie_server"`
	CommandServer string       `toml:"command_server"`
	AdminAddr     string       `toml:"admin_addr"`
	CorsOrigins   []string     `toml:"cors_origins"`
	Commands      []string     `toml:"commands"`
	Cookie        CookieTable  `toml:"cookie"`
	Command       CommandTable `toml:"command"`
}

type CookieTable struct {
	Capacity int    `toml:"capacity"`
	TTL      string `toml:"ttl"`
}

type CommandTable struct {
	// ServeCookies runs a cookie server on cookie_server in the same process
	// and validates command cookies against its store.
	ServeCookies bool `toml:"serve_cookies"`
}

func LoadNodeConfig(path string) (NodeConfig, error) {
	var cfg NodeConfig
	if err := loadToml(path, &cfg); err != nil {
		return NodeConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// WithDefaults fills the listen address and peer addresses for the role.
func (c NodeConfig) WithDefaults() NodeConfig {
	c.Role = strings.ToLower(strings.TrimSpace(c.Role))
	if strings.TrimSpace(c.CookieServer) == "" {
		c.CookieServer = DefaultCookieServer
	}
	if strings.TrimSpace(c.CommandServer) == "" {
		c.CommandServer = DefaultCommandServer
	}
	if strings.TrimSpace(c.ID) == "" && c.Role != "" {
		c.ID = "cpd-" + c.Role
	}
	if strings.TrimSpace(c.Listen) == "" {
		switch cp.Role(c.Role) {
		case cp.RoleCookieServer:
			c.Listen = c.CookieServer
		case cp.RoleCommandServer:
			c.Listen = c.CommandServer
		case cp.RoleClient:
			c.Listen = "127.0.0.1:0"
		}
	}
	if c.Cookie.Capacity == 0 {
		c.Cookie.Capacity = cookie.DefaultCapacity
	}
	if strings.TrimSpace(c.Cookie.TTL) == "" {
		c.Cookie.TTL = cookie.DefaultTTL.String()
	}
	return c
}

func ValidateNodeConfig(cfg NodeConfig) error {
	role, err := cp.ParseRole(cfg.Role)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConfig)
	}
	if _, err := phy.ParseAddr(cfg.Listen, phy.ProtoPhy); err != nil {
		return fmt.Errorf("%w: listen: %w", ErrInvalidConfig, err)
	}
	if _, err := phy.ParseAddr(cfg.CookieServer, phy.ProtoCP); err != nil {
		return fmt.Errorf("%w: cookie_server: %w", ErrInvalidConfig, err)
	}
	if _, err := phy.ParseAddr(cfg.CommandServer, phy.ProtoCP); err != nil {
		return fmt.Errorf("%w: command_server: %w", ErrInvalidConfig, err)
	}
	if cfg.Cookie.Capacity < 0 {
		return fmt.Errorf("%w: cookie capacity must not be negative", ErrInvalidConfig)
	}
	if _, err := cfg.CookieTTL(); err != nil {
		return err
	}
	if role == cp.RoleClient && len(cfg.Commands) == 0 {
		return fmt.Errorf("%w: client requires at least one command", ErrInvalidConfig)
	}
	if cfg.Command.ServeCookies && role != cp.RoleCommandServer {
		return fmt.Errorf("%w: serve_cookies applies to command-server only", ErrInvalidConfig)
	}
	if cfg.Command.ServeCookies && cfg.CookieServer == cfg.Listen {
		return fmt.Errorf("%w: cookie_server must differ from listen when serving cookies", ErrInvalidConfig)
	}
	return nil
}

func (c NodeConfig) CookieTTL() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Cookie.TTL))
	if err != nil {
		return 0, fmt.Errorf("%w: parse cookie ttl: %w", ErrInvalidConfig, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: cookie ttl must not be negative", ErrInvalidConfig)
	}
	return d, nil
}
