// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

func newCallCmd() *cobra.Command {
	var (
		argsJSON       string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "call <server-id> <tool>",
		Short: "Invoke a tool on a configured server",
		Long: `Invoke a tool on a configured server. Tool arguments are passed as a
JSON object via --args.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			srv, err := cfg.Server(args[0])
			if err != nil {
				return err
			}

			toolArgs := map[string]any{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("invalid --args: %w", err)
				}
			}

			mgr := newManager(cfg)
			defer mgr.Shutdown()

			result, err := mgr.ExecuteTool(cmd.Context(), srv.Connection(), conversationID, args[1], toolArgs)
			if err != nil {
				c := relay.Classify(err)
				return fmt.Errorf("tool call failed (%s): %s", c.Kind, c.Message)
			}

			if result.IsError {
				fmt.Println("tool reported an error:")
			}
			for _, item := range result.Content {
				switch item.Type {
				case "text":
					fmt.Println(item.Text)
				default:
					fmt.Printf("[%s content, %s, %d bytes base64]\n", item.Type, item.MimeType, len(item.Data))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id for servers with per-conversation state")
	return cmd
}
