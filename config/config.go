// Package config loads the runtime's settings from flags, environment
// variables, and an optional TOML file via spf13/viper, matching the
// precedence and file-discovery pattern the retrieval pack's own cobra/viper
// CLI uses (cli.initConfig in the evalgo-org-eve example), adapted from YAML
// to TOML per SPEC_FULL.md's ambient stack. viper reads the file with its
// built-in "toml" config type; BurntSushi/toml is used only by WriteExample.
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// NetworkConfig governs the event handler's swarm (spec.md §4.4, §9).
type NetworkConfig struct {
	// ListenAddrs are the multiaddrs the libp2p host listens on.
	ListenAddrs []string `mapstructure:"listen_addrs" toml:"listen_addrs"`

	// RendezvousNamespace is loaded from config but not read by cmd/weaved;
	// the event handler always advertises and searches under the fixed
	// eventhandler.RendezvousNamespace.
	RendezvousNamespace string `mapstructure:"rendezvous_namespace" toml:"rendezvous_namespace"`

	// ReceiptQuorum and WorkflowQuorum are independent per spec.md's
	// explicit instruction not to guess a shared intent (Open Question 1).
	ReceiptQuorum  int `mapstructure:"receipt_quorum" toml:"receipt_quorum"`
	WorkflowQuorum int `mapstructure:"workflow_quorum" toml:"workflow_quorum"`

	MaxPeers int           `mapstructure:"max_peers" toml:"max_peers"`
	PeerTTL  time.Duration `mapstructure:"peer_ttl" toml:"peer_ttl"`

	// P2PResolveTimeout is the bound for a worker's network FindRecord
	// fallback (spec.md §4.3.1). cmd/weaved does not pass it to workers,
	// which fall back to a 30s default.
	P2PResolveTimeout time.Duration `mapstructure:"p2p_resolve_timeout" toml:"p2p_resolve_timeout"`

	InboxSize int `mapstructure:"inbox_size" toml:"inbox_size"`
}

// StoreConfig governs the receipt store (spec.md §6 Persisted state).
type StoreConfig struct {
	// Driver selects between "memory" and "sqlite".
	Driver string `mapstructure:"driver" toml:"driver"`

	// DSN is the sqlite data source name, ignored for the memory driver.
	DSN string `mapstructure:"dsn" toml:"dsn"`
}

// RuntimeConfig governs worker and evaluator behavior.
type RuntimeConfig struct {
	// MaxConcurrent is the per-batch WASM invocation concurrency bound; 0
	// means unbounded (spec.md §4.3 step 6). cmd/weaved does not pass it to
	// workers, so their batches run unbounded.
	MaxConcurrent int `mapstructure:"max_concurrent" toml:"max_concurrent"`

	// MetricsAddr is loaded from config but not read by cmd/weaved; no
	// Prometheus /metrics handler is started from it.
	MetricsAddr string `mapstructure:"metrics_addr" toml:"metrics_addr"`

	// LogLevel is parsed by zap ("debug", "info", "warn", "error").
	LogLevel string `mapstructure:"log_level" toml:"log_level"`
}

// Config is the top-level settings struct cmd/weaved builds its process
// singletons from.
type Config struct {
	Network NetworkConfig `mapstructure:"network" toml:"network"`
	Store   StoreConfig   `mapstructure:"store" toml:"store"`
	Runtime RuntimeConfig `mapstructure:"runtime" toml:"runtime"`
}

// Defaults returns the configuration a freshly started node runs with
// before any file, environment, or flag overrides are applied.
func Defaults() Config {
	return Config{
		Network: NetworkConfig{
			ListenAddrs:         []string{"/ip4/0.0.0.0/tcp/0"},
			RendezvousNamespace: "homestar",
			ReceiptQuorum:       1,
			WorkflowQuorum:      1,
			MaxPeers:            256,
			PeerTTL:             5 * time.Minute,
			P2PResolveTimeout:   30 * time.Second,
			InboxSize:           256,
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Runtime: RuntimeConfig{
			MaxConcurrent: 0,
			LogLevel:      "info",
		},
	}
}

// Load builds a viper instance seeded with Defaults, registers TOML as the
// config file format, reads cfgFile if non-empty, and overlays environment
// variables prefixed WEAVE_ (nested keys joined by underscore, e.g.
// WEAVE_NETWORK_RECEIPT_QUORUM). v is returned so callers (cmd/weaved) can
// additionally BindPFlag command-line flags onto the same instance before
// calling Unmarshal.
func Load(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("weave")
	v.SetEnvKeyReplacer(envReplacer{})
	v.AutomaticEnv()

	setDefaults(v, Defaults())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", cfgFile, err)
		}
	}

	return v, nil
}

// Unmarshal decodes v's current state (defaults + file + env + bound flags)
// into a Config.
func Unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("network.listen_addrs", d.Network.ListenAddrs)
	v.SetDefault("network.rendezvous_namespace", d.Network.RendezvousNamespace)
	v.SetDefault("network.receipt_quorum", d.Network.ReceiptQuorum)
	v.SetDefault("network.workflow_quorum", d.Network.WorkflowQuorum)
	v.SetDefault("network.max_peers", d.Network.MaxPeers)
	v.SetDefault("network.peer_ttl", d.Network.PeerTTL)
	v.SetDefault("network.p2p_resolve_timeout", d.Network.P2PResolveTimeout)
	v.SetDefault("network.inbox_size", d.Network.InboxSize)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("runtime.max_concurrent", d.Runtime.MaxConcurrent)
	v.SetDefault("runtime.metrics_addr", d.Runtime.MetricsAddr)
	v.SetDefault("runtime.log_level", d.Runtime.LogLevel)
}

// envReplacer maps "network.receipt_quorum" to "NETWORK_RECEIPT_QUORUM" for
// viper's AutomaticEnv dotted-key lookup.
type envReplacer struct{}

func (envReplacer) Replace(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

// WriteExample renders d as a TOML document, used by `weaved config init`
// to scaffold a starter file on disk (write path left to the caller).
func WriteExample(d Config) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return "", fmt.Errorf("config: encode example: %w", err)
	}
	return buf.String(), nil
}
