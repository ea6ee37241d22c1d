package config

import (
	"github.com/danmuck/cpnet/internal/cookie"
	"github.com/danmuck/cpnet/internal/phy"
)

// CookieStoreConfig converts the [cookie] table into store settings.
func (c NodeConfig) CookieStoreConfig() (cookie.Config, error) {
	ttl, err := c.CookieTTL()
	if err != nil {
		return cookie.Config{}, err
	}
	cfg := cookie.DefaultConfig()
	cfg.Capacity = c.Cookie.Capacity
	cfg.TTL = ttl
	return cfg, nil
}

// ServerAddrs resolves the configured cookie and command server addresses.
func (c NodeConfig) ServerAddrs() (cookieServer, commandServer phy.Addr, err error) {
	cookieServer, err = phy.ParseAddr(c.CookieServer, phy.ProtoCP)
	if err != nil {
		return phy.Addr{}, phy.Addr{}, err
	}
	commandServer, err = phy.ParseAddr(c.CommandServer, phy.ProtoCP)
	if err != nil {
		return phy.Addr{}, phy.Addr{}, err
	}
	return cookieServer, commandServer, nil
}
