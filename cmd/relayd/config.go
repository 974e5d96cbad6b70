// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file
const DefaultConfigFileName = "relayd"

// Config holds all configuration for the Relay server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// DataDir is the Relay data directory (RELAY_DATA_DIR env var or
	// ~/.relay). Set during config initialization, not loaded from the
	// config file.
	DataDir string `mapstructure:"-"`

	Server        ServerConfig        `mapstructure:"server"`
	Agent         AgentConfig         `mapstructure:"agent"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Guard         GuardConfig         `mapstructure:"guard"`
	Presence      PresenceConfig      `mapstructure:"presence"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the HTTP host configuration.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	AuthToken string `mapstructure:"auth_token"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 15)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AgentConfig describes the hosted agent.
type AgentConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
	// BlueprintID scopes presence discovery (empty=discovery disabled)
	BlueprintID string `mapstructure:"blueprint_id"`
}

// LLMConfig holds model provider configuration.
type LLMConfig struct {
	AnthropicAPIKey   string  `mapstructure:"anthropic_api_key"`
	AnthropicModel    string  `mapstructure:"anthropic_model"`
	AnthropicEndpoint string  `mapstructure:"anthropic_endpoint"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// GuardConfig holds install/consent gating configuration.
type GuardConfig struct {
	AcceptPhrase     string `mapstructure:"accept_phrase"`
	PreAcceptConsent bool   `mapstructure:"pre_accept_consent"`
	// TenantID keys persisted state for single-tenant deployments
	TenantID string `mapstructure:"tenant_id"`
	// DBPath is the sqlite state file (default: $RELAY_DATA_DIR/guard.db, empty string "off" disables persistence)
	DBPath string `mapstructure:"db_path"`
}

// PresenceConfig holds keep-alive scheduler configuration.
type PresenceConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	TickSeconds         int  `mapstructure:"tick_seconds"`
	KeepAliveSeconds    int  `mapstructure:"keep_alive_seconds"`
	MaxIdleSeconds      int  `mapstructure:"max_idle_seconds"`
	MaxInFlight         int  `mapstructure:"max_in_flight"`
	BootstrapMinutes    int  `mapstructure:"bootstrap_minutes"`
	BootstrapPageSize   int  `mapstructure:"bootstrap_page_size"`
	CallTimeoutSeconds  int  `mapstructure:"call_timeout_seconds"`
}

// IdentityConfig holds the identity directory client configuration.
type IdentityConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ObservabilityConfig holds telemetry export configuration.
type ObservabilityConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Namespace   string `mapstructure:"namespace"`
	Endpoint    string `mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetRelayDataDir returns the data directory, respecting the
// RELAY_DATA_DIR environment variable.
func GetRelayDataDir() string {
	if dir := os.Getenv("RELAY_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relay"
	}
	return filepath.Join(home, ".relay")
}

// LoadConfig loads configuration with the following priority:
// 1. CLI flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(GetRelayDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/relay/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("RELAY")
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.DataDir = GetRelayDataDir()

	if config.LLM.AnthropicAPIKey == "" {
		config.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.addr", ":3978")
	viper.SetDefault("server.shutdown_timeout_seconds", 15)

	// Agent defaults
	viper.SetDefault("agent.name", "relay")
	viper.SetDefault("agent.system_prompt", "You are a helpful enterprise assistant. Keep answers short and concrete.")

	// LLM defaults
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.timeout_seconds", 120)

	// Guard defaults
	viper.SetDefault("guard.accept_phrase", "I accept")
	viper.SetDefault("guard.tenant_id", "default")
	viper.SetDefault("guard.db_path", filepath.Join(GetRelayDataDir(), "guard.db"))

	// Presence defaults
	viper.SetDefault("presence.enabled", true)
	viper.SetDefault("presence.tick_seconds", 30)
	viper.SetDefault("presence.keep_alive_seconds", 240)
	viper.SetDefault("presence.max_idle_seconds", 1800)
	viper.SetDefault("presence.max_in_flight", 8)
	viper.SetDefault("presence.bootstrap_minutes", 15)
	viper.SetDefault("presence.bootstrap_page_size", 100)
	viper.SetDefault("presence.call_timeout_seconds", 10)

	// Identity defaults
	viper.SetDefault("identity.timeout_seconds", 30)

	// Observability defaults
	viper.SetDefault("observability.enabled", true)
	viper.SetDefault("observability.service_name", "relayd")
	viper.SetDefault("observability.namespace", "relay")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
