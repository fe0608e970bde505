// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools [server-id]",
		Short: "List tools advertised by configured servers",
		Long: `List the tools advertised by one server, or by all configured servers
when no server id is given. Listings are served from the catalog cache
when fresh.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := newManager(cfg)
			defer mgr.Shutdown()

			var tools []relay.ToolInstance
			if len(args) == 1 {
				srv, err := cfg.Server(args[0])
				if err != nil {
					return err
				}
				tools, err = mgr.GetServerTools(cmd.Context(), srv.Connection(), "")
				if err != nil {
					return err
				}
			} else {
				tools, err = mgr.GetTools(cmd.Context(), cfg.Connections(), "")
				if err != nil {
					return err
				}
			}

			if asJSON {
				out, err := json.MarshalIndent(tools, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			for _, t := range tools {
				desc := t.Description
				if i := strings.IndexByte(desc, '\n'); i >= 0 {
					desc = desc[:i]
				}
				fmt.Printf("%s/%s\t%s\n", t.ServerID, t.Name, desc)
			}
			fmt.Printf("%d tools\n", len(tools))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
