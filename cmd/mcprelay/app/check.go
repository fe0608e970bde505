// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check <server-id>",
		Short: "Probe a server for MCP protocol compliance",
		Long: `Probe a configured server for MCP protocol compliance. The probe runs
connectivity, handshake, tool discovery, and capability checks in order
and always produces a report; it exits non-zero when the server is not
compliant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			srv, err := cfg.Server(args[0])
			if err != nil {
				return err
			}

			mgr := newManager(cfg)
			defer mgr.Shutdown()

			report := mgr.RunComplianceReport(cmd.Context(), srv.Connection())

			if asJSON {
				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				if !report.Compliant {
					return fmt.Errorf("server %s is not compliant", report.ServerID)
				}
				return nil
			}
			fmt.Printf("compliance report %s for %s (%s)\n", report.ID, report.ServerID, report.URL)
			for _, step := range report.Steps {
				fmt.Printf("  %-20s %s (%s)\n", step.Name, step.Status, step.Duration.Round(0))
				for _, issue := range step.Issues {
					fmt.Printf("    issue: %s\n", issue)
				}
				for _, rec := range step.Recommendations {
					fmt.Printf("    recommendation: %s\n", rec)
				}
			}

			if !report.Compliant {
				return fmt.Errorf("server %s is not compliant", report.ServerID)
			}
			fmt.Printf("server %s is compliant\n", report.ServerID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")
	return cmd
}
