package config

import (
	"os"
	"strconv"
)

// Environment variables recognized for the history backend. CLICKHOUSE_PORT is
// the native protocol port; the HTTP interface is what this process speaks, so
// CLICKHOUSE_HTTP_PORT wins when both are set.
func applyEnv(c *Config) {
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		c.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		c.ClickHouse.User = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	httpPort := parsePortEnv("CLICKHOUSE_HTTP_PORT")
	nativePort := parsePortEnv("CLICKHOUSE_PORT")
	if httpPort > 0 {
		c.ClickHouse.HTTPPort = httpPort
	} else if nativePort > 0 {
		// Native port set without an HTTP port: keep the HTTP default rather
		// than POSTing SQL at the native listener.
		c.ClickHouse.HTTPPort = 8123
	}
}

func parsePortEnv(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}
