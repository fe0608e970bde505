// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the mcprelay CLI.
package main

import (
	"os"

	"github.com/relaymesh/mcprelay/cmd/mcprelay/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
