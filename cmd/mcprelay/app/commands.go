// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcprelay command-line
// application.
package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay/config"
	"github.com/relaymesh/mcprelay/pkg/relay/manager"
)

var rootCmd = &cobra.Command{
	Use:               "mcprelay",
	DisableAutoGenTag: true,
	Short:             "mcprelay manages authenticated connections to MCP tool servers",
	Long: `mcprelay manages the client side of MCP (Model Context Protocol) connections:
authentication, session negotiation, client pooling, tool discovery, and
protocol compliance probing for a configured set of remote tool servers.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the mcprelay CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "mcprelay.yaml", "Path to configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}

// loadConfig reads and validates the configuration file.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newManager builds a manager from the file-level tunables.
func newManager(cfg *config.Config) *manager.Manager {
	mcfg := manager.DefaultConfig()
	if cfg.SessionTTLMinutes > 0 {
		mcfg.SessionTTL = time.Duration(cfg.SessionTTLMinutes) * time.Minute
	}
	if cfg.CatalogTTLSeconds > 0 {
		mcfg.CatalogTTL = time.Duration(cfg.CatalogTTLSeconds) * time.Second
	}
	if cfg.MaxClients > 0 {
		mcfg.Pool.MaxClients = cfg.MaxClients
	}
	return manager.New(mcfg)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Infof("Configuration is valid: %d servers", len(cfg.Servers))
			for i := range cfg.Servers {
				s := &cfg.Servers[i]
				logger.Infof("  %s: %s (auth: %s)", s.ID, s.URL, s.AuthType)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("mcprelay version: %s\n", getVersion())
		},
	}
}

// getVersion returns the version string (set at build time via ldflags).
func getVersion() string {
	return version
}

var version = "dev"
