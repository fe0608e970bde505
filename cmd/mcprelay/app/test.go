// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
)

func newTestCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "test <server-id>",
		Short: "Test connectivity to a configured server",
		Long: `Test connectivity to a configured server by running the protocol
handshake and a tool listing. With --wait, the test is retried with
exponential backoff until it succeeds or the wait budget runs out;
non-retryable failures (auth, protocol) stop immediately.`,
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

			conn := srv.Connection()
			test := func() (struct{}, error) {
				err := mgr.TestConnection(cmd.Context(), conn)
				if err == nil {
					return struct{}{}, nil
				}
				if !relay.Classify(err).Retryable {
					return struct{}{}, backoff.Permanent(err)
				}
				return struct{}{}, err
			}

			if wait > 0 {
				_, err = backoff.Retry(cmd.Context(), test,
					backoff.WithBackOff(backoff.NewExponentialBackOff()),
					backoff.WithMaxElapsedTime(wait),
					backoff.WithNotify(func(err error, next time.Duration) {
						logger.Warnf("server %s not ready (%v), retrying in %s", conn.ID, err, next)
					}),
				)
			} else {
				_, err = test()
			}
			if err != nil {
				c := relay.Classify(err)
				return fmt.Errorf("connection test failed (%s, retryable=%t): %s", c.Kind, c.Retryable, c.Message)
			}

			fmt.Printf("server %s is reachable and serving tools\n", conn.ID)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep retrying for up to this long (e.g. 2m)")
	return cmd
}
