package config

import (
	"encoding/json"
	"errors"
	"os"
)

type Config struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AppName string `json:"app_name"`

	JwtSecret       string `json:"jwt_secret"`
	PingIntervalSec int    `json:"ping_interval_sec"`
	MaxMessageBytes int    `json:"max_message_bytes"`

	QoS struct {
		BaseRetryMs  int `json:"base_retry_ms"`
		MaxRetry     int `json:"max_retry"`
		MaxBackoffMs int `json:"max_backoff_ms"`
	} `json:"qos"`

	Session struct {
		TTLMs int64 `json:"ttl_ms"`
	} `json:"session"`

	Idempotency struct {
		TTLMs int64 `json:"ttl_ms"`
	} `json:"idempotency"`

	ClickHouse struct {
		Host     string `json:"host"`
		HTTPPort int    `json:"http_port"`
		Database string `json:"database"`
		User     string `json:"user"`
		Password string `json:"password"`
	} `json:"clickhouse"`

	Archive struct {
		Enabled            bool   `json:"enabled"`
		Host               string `json:"host"`
		Port               uint64 `json:"port"`
		Username           string `json:"username"`
		Password           string `json:"password"`
		Database           string `json:"database"`
		UseTLS             bool   `json:"use_tls"`
		ConnectTimeout     string `json:"connect_timeout"`
		SocketTimeout      string `json:"socket_timeout"`
		ConnectIdleTimeout string `json:"connect_idle_timeout"`
		OperationTimeout   string `json:"operation_timeout"`
		Heartbeat          string `json:"heartbeat"`
		MinPoolSize        uint64 `json:"min_pool_size"`
		MaxPoolSize        uint64 `json:"max_pool_size"`
	} `json:"archive"`

	DebugMode bool `json:"debug_mode"`
}

var config Config
var initialized = false

func defaults() Config {
	var c Config
	c.Host = "0.0.0.0"
	c.Port = 8082
	c.AppName = "trading-gateway"
	c.PingIntervalSec = 30
	c.MaxMessageBytes = 5 * 1024 * 1024
	c.QoS.BaseRetryMs = 100
	c.QoS.MaxRetry = 5
	c.QoS.MaxBackoffMs = 2000
	c.Session.TTLMs = 30000
	c.Idempotency.TTLMs = 300000
	c.ClickHouse.Host = "localhost"
	c.ClickHouse.HTTPPort = 8123
	c.ClickHouse.Database = "trading"
	c.ClickHouse.User = "default"
	c.Archive.ConnectTimeout = "15s"
	c.Archive.SocketTimeout = "30s"
	c.Archive.ConnectIdleTimeout = "60s"
	c.Archive.OperationTimeout = "10s"
	c.Archive.Heartbeat = "10s"
	c.Archive.MinPoolSize = 2
	c.Archive.MaxPoolSize = 16
	return c
}

func ReadConfig() (Config, error) {
	config = defaults()
	bytes, err := os.ReadFile("config.json")

	if err != nil {
		writer, _ := os.OpenFile("config.json", os.O_WRONLY|os.O_CREATE, 0777)
		data, _ := json.MarshalIndent(config, "", "\t")
		_, _ = writer.Write(data)
		_ = writer.Close()
		applyEnv(&config)
		initialized = true
		return config, nil
	}

	err = json.Unmarshal(bytes, &config)

	if err != nil {
		return config, errors.New("the configuration file does not contain valid JSON")
	}

	applyEnv(&config)
	initialized = true
	return config, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig()
}

// SetOverrides applies the positional CLI overrides after ReadConfig.
func SetOverrides(port int, host string) {
	if port > 0 {
		config.Port = port
	}
	if host != "" {
		config.Host = host
	}
}
