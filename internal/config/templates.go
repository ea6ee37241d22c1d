package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/cpnet/internal/cp"
)

// Template returns the starter config for a role.
func Template(role string) (string, error) {
	switch cp.Role(strings.ToLower(strings.TrimSpace(role))) {
	case cp.RoleCookieServer:
		return cookieServerTemplate, nil
	case cp.RoleCommandServer:
		return commandServerTemplate, nil
	case cp.RoleClient:
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config role: %s", role)
	}
}

func WriteTemplate(path, role string, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const cookieServerTemplate = `id = "cookies-a"
role = "cookie-server"
listen = "127.0.0.1:4000"
admin_addr = ":9400"
cors_origins = ["http://localhost:3000"]

[cookie]
capacity = 20
ttl = "60s"
`

const commandServerTemplate = `id = "commands-a"
role = "command-server"
listen = "127.0.0.1:4999"
cookie_server = "127.0.0.1:4000"
admin_addr = ":9401"
cors_origins = ["http://localhost:3000"]

[cookie]
capacity = 20
ttl = "60s"

[command]
serve_cookies = false
`

const clientTemplate = `id = "client-a"
role = "client"
listen = "127.0.0.1:0"
cookie_server = "127.0.0.1:4000"
command_server = "127.0.0.1:4999"
commands = ["status", "print hello world"]

[session]
response_timeout = "2s"
cookie_attempts = 3
receive_attempts = 2
`
