/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the service configuration from a yaml file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "COMMUNICATION_"

// Duration is a time.Duration that unmarshals from yaml strings such as
// "24h" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration.
type Config struct {
	// Environment is one of development, testnet, production.
	Environment string `yaml:"environment"`
	ListenAddr  string `yaml:"listenAddr"`
	LogLevel    string `yaml:"logLevel"`

	WebSocket WebSocket `yaml:"websocket"`
	Chain     Chain     `yaml:"chain"`
	Faucet    Faucet    `yaml:"faucet"`
	Watcher   Watcher   `yaml:"watcher"`
	Swap      Swap      `yaml:"swap"`
	Info      Info      `yaml:"info"`
}

// WebSocket bounds the per-session request rate.
type WebSocket struct {
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// Chain names the external chain endpoints and well-known accounts. The
// bridge watcher and swap executor stay disabled while EVMEndpoint or
// TonomyEndpoint is empty.
type Chain struct {
	CurrencySymbol  string `yaml:"currencySymbol"`
	EVMEndpoint     string `yaml:"evmEndpoint"`
	TonomyEndpoint  string `yaml:"tonomyEndpoint"`
	BridgeAddress   string `yaml:"bridgeAddress"`
	TokenContract   string `yaml:"tokenContract"`
	TonomyContract  string `yaml:"tonomyContract"`
	BridgeAccount   string `yaml:"bridgeAccount"`
	AppAccount      string `yaml:"appAccount"`
	TreasuryAccount string `yaml:"treasuryAccount"`

	// SignerEndpoint is the sidecar that signs prepared transactions for
	// both chains. Key custody never enters this process.
	SignerEndpoint string `yaml:"signerEndpoint"`
	// MsigWallet is the multi-signature wallet contract on the EVM chain.
	MsigWallet string `yaml:"msigWallet"`
}

// Faucet caps are whole tokens; they are converted to micro-units at
// wiring time.
type Faucet struct {
	PerRequestMax int64 `yaml:"perRequestMax"`
	DailyCap      int64 `yaml:"dailyCap"`
}

// Watcher bounds the transfer record retention.
type Watcher struct {
	Retention     Duration `yaml:"retention"`
	SweepInterval Duration `yaml:"sweepInterval"`
}

// Swap selects the destination transfer path.
type Swap struct {
	Msig bool `yaml:"msig"`
}

// Info configures the informational endpoint cache.
type Info struct {
	CacheTTL Duration `yaml:"cacheTTL"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Environment: "development",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		WebSocket:   WebSocket{RateLimit: 10, RateBurst: 20},
		Chain: Chain{
			CurrencySymbol:  "TONO",
			TonomyContract:  "token.tmy",
			BridgeAccount:   "bridge.tmy",
			AppAccount:      "apps.tmy",
			TreasuryAccount: "treasury.tmy",
		},
		Faucet:  Faucet{PerRequestMax: 1_000, DailyCap: 20_000},
		Watcher: Watcher{Retention: Duration(24 * time.Hour), SweepInterval: Duration(time.Hour)},
		Info:    Info{CacheTTL: Duration(time.Minute)},
	}
}

// Load reads path (optional) over the defaults and applies environment
// variable overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Production reports whether the faucet must be disabled.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// BridgeEnabled reports whether both chain endpoints are configured.
func (c *Config) BridgeEnabled() bool {
	return c.Chain.EVMEndpoint != "" && c.Chain.TonomyEndpoint != ""
}

func (c *Config) validate() error {
	switch c.Environment {
	case "development", "testnet", "production":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must be set")
	}

	if c.Faucet.PerRequestMax <= 0 || c.Faucet.DailyCap < c.Faucet.PerRequestMax {
		return fmt.Errorf("faucet caps must satisfy 0 < perRequestMax <= dailyCap")
	}

	if c.BridgeEnabled() {
		if c.Chain.BridgeAddress == "" {
			return fmt.Errorf("bridgeAddress must be set when chain endpoints are configured")
		}

		if c.Chain.SignerEndpoint == "" {
			return fmt.Errorf("signerEndpoint must be set when chain endpoints are configured")
		}
	}

	if c.Swap.Msig && c.Chain.MsigWallet == "" {
		return fmt.Errorf("msigWallet must be set when swap.msig is enabled")
	}

	if c.Watcher.Retention <= 0 || c.Watcher.SweepInterval <= 0 {
		return fmt.Errorf("watcher retention and sweep interval must be positive")
	}

	return nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Environment, "ENVIRONMENT")
	override(&cfg.ListenAddr, "LISTEN_ADDR")
	override(&cfg.LogLevel, "LOG_LEVEL")
	override(&cfg.Chain.EVMEndpoint, "EVM_ENDPOINT")
	override(&cfg.Chain.TonomyEndpoint, "TONOMY_ENDPOINT")
	override(&cfg.Chain.BridgeAddress, "BRIDGE_ADDRESS")
	override(&cfg.Chain.TokenContract, "TOKEN_CONTRACT")
	override(&cfg.Chain.SignerEndpoint, "SIGNER_ENDPOINT")
}

func override(target *string, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok {
		*target = v
	}
}
