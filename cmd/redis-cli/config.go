package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pior/redis"
	"github.com/rs/zerolog"
)

type fileConfig struct {
	Servers             []string `toml:"servers"`
	MaxSize             int32    `toml:"max_size"`
	Pool                string   `toml:"pool"`
	MaxConnLifetime     string   `toml:"max_conn_lifetime"`
	MaxConnIdleTime     string   `toml:"max_conn_idle_time"`
	HealthCheckInterval string   `toml:"health_check_interval"`
	CircuitBreaker      bool     `toml:"circuit_breaker"`
}

type cliConfig struct {
	Servers []string
	Client  redis.Config
}

func defaultConfig() cliConfig {
	return cliConfig{
		Servers: []string{"127.0.0.1:6379"},
		Client:  redis.Config{MaxSize: 2},
	}
}

func loadConfig(path string, logger zerolog.Logger) (cliConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("servers") {
		cfg.Servers = splitServers(strings.Join(raw.Servers, ","))
	}

	if meta.IsDefined("max_size") {
		cfg.Client.MaxSize = raw.MaxSize
	}

	if meta.IsDefined("pool") {
		switch strings.TrimSpace(raw.Pool) {
		case "", "channel":
			cfg.Client.Pool = redis.NewChannelPool
		case "puddle":
			cfg.Client.Pool = redis.NewPuddlePool
		default:
			return cliConfig{}, fmt.Errorf("unknown pool %q", raw.Pool)
		}
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"max_conn_lifetime", raw.MaxConnLifetime, &cfg.Client.MaxConnLifetime},
		{"max_conn_idle_time", raw.MaxConnIdleTime, &cfg.Client.MaxConnIdleTime},
		{"health_check_interval", raw.HealthCheckInterval, &cfg.Client.HealthCheckInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if meta.IsDefined("circuit_breaker") && raw.CircuitBreaker {
		cfg.Client.NewCircuitBreaker = redis.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second, logger)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logger.Warn().Interface("keys", undecoded).Msg("ignoring unknown config keys")
	}

	return cfg, nil
}

func splitServers(s string) []string {
	var servers []string
	for _, server := range strings.Split(s, ",") {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	return servers
}
