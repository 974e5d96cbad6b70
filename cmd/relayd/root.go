// Copyright © 2026 Fieldline Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldline-labs/relay/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "relayd",
	Short:   "Relay - enterprise agent turn-processing runtime",
	Long:    `Relay (relayd) hosts a conversational agent over HTTP: it gates turns on installation and consent state, routes notifications, keeps session presence alive, and exports per-turn telemetry.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $RELAY_DATA_DIR/relayd.yaml)")

	// Server flags
	rootCmd.PersistentFlags().String("addr", ":3978", "HTTP listen address")
	rootCmd.PersistentFlags().String("auth-token", "", "bearer token required on /api/messages (empty=disabled)")

	// LLM flags
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (or use env)")
	rootCmd.PersistentFlags().String("anthropic-model", "", "Anthropic model (default from ANTHROPIC_DEFAULT_MODEL)")
	rootCmd.PersistentFlags().Int("max-tokens", 4096, "Maximum tokens per request")

	// Guard flags
	rootCmd.PersistentFlags().Bool("pre-accept-consent", false, "Skip the consent prompt after install")

	// Observability flags
	rootCmd.PersistentFlags().Bool("observability", true, "Enable telemetry export (use --observability=false to disable)")
	rootCmd.PersistentFlags().String("telemetry-endpoint", "", "Telemetry collector endpoint URL")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.addr", rootCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("server.auth_token", rootCmd.PersistentFlags().Lookup("auth-token"))

	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("llm.anthropic_model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))

	_ = viper.BindPFlag("guard.pre_accept_consent", rootCmd.PersistentFlags().Lookup("pre-accept-consent"))

	_ = viper.BindPFlag("observability.enabled", rootCmd.PersistentFlags().Lookup("observability"))
	_ = viper.BindPFlag("observability.endpoint", rootCmd.PersistentFlags().Lookup("telemetry-endpoint"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
