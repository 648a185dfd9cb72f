package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/haveachin/minestat/pkg/minestat"
	"github.com/haveachin/minestat/pkg/minestat/protocol"
	"github.com/imdario/mergo"
	"go.uber.org/multierr"
)

var (
	ErrNoAddress     = errors.New("target has no address")
	ErrDuplicateName = errors.New("duplicate target name")
)

type TargetConfig struct {
	Name            string           `yaml:"name"`
	Address         string           `yaml:"address"`
	Port            int              `yaml:"port"`
	Timeout         time.Duration    `yaml:"timeout"`
	ProtocolVersion protocol.Version `yaml:"protocolVersion"`
}

// HostPort returns the address the target is dialed at.
func (cfg TargetConfig) HostPort() string {
	return net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
}

// APIConfig configures the HTTP API. Bind and the CORS settings are only read
// at startup; the probe settings follow config reloads.
type APIConfig struct {
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
	// ProbeAllowlist holds wildcard patterns of addresses that may be probed
	// through the API. Nothing can be probed if it is empty.
	ProbeAllowlist []string `yaml:"probeAllowlist"`
	// ProbeRateLimit is the number of probes per second the API accepts
	// from a single client. Zero disables the limit.
	ProbeRateLimit float64 `yaml:"probeRateLimit"`
	ProbeBurst     int     `yaml:"probeBurst"`
	// TrustProxy takes the client address from the X-Forwarded-For and
	// X-Real-IP headers. Only enable it behind a reverse proxy that sets them.
	TrustProxy bool `yaml:"trustProxy"`
}

type ExporterConfig struct {
	// ScrapeTimeout bounds the queries of a single scrape. Zero disables it.
	ScrapeTimeout time.Duration `yaml:"scrapeTimeout"`
}

type Config struct {
	Pinger   minestat.Config `yaml:"pinger"`
	API      APIConfig       `yaml:"api"`
	Exporter ExporterConfig  `yaml:"exporter"`
	Defaults struct {
		Target TargetConfig `yaml:"target"`
	} `yaml:"defaults"`
	Targets []TargetConfig `yaml:"targets"`
}

func DefaultConfig() Config {
	cfg := Config{
		Pinger: minestat.DefaultConfig(),
		API: APIConfig{
			Bind:           ":9150",
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ProbeRateLimit: 10,
			ProbeBurst:     10,
		},
		Exporter: ExporterConfig{
			ScrapeTimeout: 30 * time.Second,
		},
	}
	cfg.Defaults.Target.Port = minestat.DefaultPort
	return cfg
}

// applyDefaults fills every unset target field from the target defaults.
func (cfg *Config) applyDefaults() error {
	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		if err := mergo.Merge(t, cfg.Defaults.Target); err != nil {
			return err
		}

		if t.Port == 0 {
			t.Port = minestat.DefaultPort
		}

		if t.Name == "" {
			t.Name = t.HostPort()
		}
	}
	return nil
}

// Validate reports every invalid target at once.
func (cfg Config) Validate() error {
	var result error
	names := map[string]struct{}{}
	for i, t := range cfg.Targets {
		if t.Address == "" {
			result = multierr.Append(result, fmt.Errorf("targets[%d]: %w", i, ErrNoAddress))
		}

		if t.Port < 1 || t.Port > 65535 {
			result = multierr.Append(result, fmt.Errorf("targets[%d]: %w", i, minestat.ErrInvalidPort))
		}

		if t.Timeout < 0 {
			result = multierr.Append(result, fmt.Errorf("targets[%d]: negative timeout %s", i, t.Timeout))
		}

		if _, ok := names[t.Name]; ok {
			result = multierr.Append(result, fmt.Errorf("targets[%d]: %w %q", i, ErrDuplicateName, t.Name))
		}
		names[t.Name] = struct{}{}
	}

	if cfg.Exporter.ScrapeTimeout < 0 {
		result = multierr.Append(result, fmt.Errorf("exporter: negative scrape timeout %s", cfg.Exporter.ScrapeTimeout))
	}

	if cfg.API.ProbeRateLimit < 0 {
		result = multierr.Append(result, fmt.Errorf("api: negative probe rate limit %v", cfg.API.ProbeRateLimit))
	}

	return result
}

// PingerConfig returns the pinger configuration for a target.
func (cfg Config) PingerConfig(t TargetConfig) minestat.Config {
	pCfg := cfg.Pinger
	if t.Timeout > 0 {
		pCfg.Timeout = t.Timeout
	}

	if t.ProtocolVersion != 0 {
		pCfg.ProtocolVersion = t.ProtocolVersion
	}
	return pCfg
}
