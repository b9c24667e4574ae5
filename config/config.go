// Package config loads the communicator daemon's settings from a file,
// environment variables, and flags, in that order of increasing
// precedence, and can watch the file for live edits to the circuit
// breaker thresholds (WatchBreaker); every other setting takes effect at
// the next restart.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration snapshot.
type Config struct {
	ServiceName string `mapstructure:"service_name"`

	WS     WSConfig     `mapstructure:"ws"`
	TCP    TCPConfig    `mapstructure:"tcp"`
	GRPC   GRPCConfig   `mapstructure:"grpc"`
	LP     LPConfig     `mapstructure:"lp"`
	Worker WorkerConfig `mapstructure:"worker"`

	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// MonitorConfig controls the optional termui dashboard showing pending
// call depth and lifecycle state for every connector this node has
// accepted.
type MonitorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Tick    time.Duration `mapstructure:"tick"`
}

type WSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type TCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type WorkerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AMQPURL  string `mapstructure:"amqp_url"`
	SendTopic string `mapstructure:"send_topic"`
}

// BreakerConfig configures rfc.WithCircuitBreaker for every transport that
// opts into it.
type BreakerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	FailureThreshold  uint32        `mapstructure:"failure_threshold"`
	OpenFor           time.Duration `mapstructure:"open_for"`
}

// DiscoveryConfig points at the Consul agent a running node registers
// itself with, so other nodes can find a reachable transport address.
type DiscoveryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ConsulAddr  string        `mapstructure:"consul_addr"`
	ServiceAddr string        `mapstructure:"service_addr"`
	ServicePort int           `mapstructure:"service_port"`
	TTL         time.Duration `mapstructure:"ttl"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("service_name", "rfc-communicator")
	v.SetDefault("ws.enabled", true)
	v.SetDefault("ws.addr", ":8080")
	v.SetDefault("tcp.enabled", false)
	v.SetDefault("tcp.addr", ":9090")
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":9091")
	v.SetDefault("lp.enabled", false)
	v.SetDefault("lp.addr", ":8081")
	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.send_topic", "rfc.inbound")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_for", 30*time.Second)
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.consul_addr", "127.0.0.1:8500")
	v.SetDefault("discovery.service_addr", "127.0.0.1")
	v.SetDefault("discovery.service_port", 8080)
	v.SetDefault("discovery.ttl", 10*time.Second)
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.tick", time.Second)
}

// Load reads configFile (if non-empty), environment variables prefixed
// RFC_, and flags, merges them in that precedence order, and returns the
// resulting Config.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("RFC")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchBreaker re-reads the breaker thresholds from configFile on every
// write and invokes onChange with the updated values. Only the breaker
// section is hot-reloadable: transport addr/enabled flags take effect at
// the next restart, since tearing down a live listener mid-request is not
// worth the complexity for a daemon this size.
func WatchBreaker(configFile string, onChange func(BreakerConfig)) error {
	if configFile == "" {
		return nil
	}
	v := viper.New()
	defaults(v)
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", configFile, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(cfg.Breaker)
	})
	v.WatchConfig()
	return nil
}
