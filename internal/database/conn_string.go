package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/enhance-client/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
// appName, when set, is reported to the server as application_name.
func BuildConnString(cfg config.DatabaseConfig, appName string) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	params := url.Values{}
	params.Set("sslmode", sslMode)
	if appName != "" {
		params.Set("application_name", appName)
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(cfg.User),
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		params.Encode(),
	)
}
