package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Upstox Options Configuration

[upstox]
# API host
base_url = "https://api.upstox.com"
# HTTP client timeout
timeout = "15s"

[options]
# Contract multiplier used for premium_earned
lot_size = 50
# Upper bound for each margin lookup (0 disables)
margin_timeout = "10s"
# Instrument key prefixes
index_prefix = "NSE_INDEX"
option_prefix = "NSE_OPTION"

[store]
# SQLite file for saved snapshots (default: <config dir>/snapshots.db)
# path = ""

[logging]
# debug, info, warn, error, disabled
level = "info"
# Write rotated log files under ~/.config/upstox-options/logs
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Upstox Options Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[upstox]
# Bearer token for the Upstox v2 API
access_token = ""
# Alternatively, read the token from Redis
redis_url = ""
token_key = "access_token"
`

func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}
