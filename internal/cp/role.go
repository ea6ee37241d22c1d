package cp

import (
	"fmt"
	"strings"
)

// Role selects which CP participant a process runs.
type Role string

const (
	RoleClient        Role = "client"
	RoleCookieServer  Role = "cookie-server"
	RoleCommandServer Role = "command-server"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleClient, RoleCookieServer, RoleCommandServer:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}
