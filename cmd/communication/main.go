/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main starts the communication service: the websocket relay for
// signed DID messages plus the token bridge watcher and swap executor.
package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/cmd/communication/startcmd"
)

var logger = log.New("communication/main")

func main() {
	rootCmd := &cobra.Command{
		Use: "communication",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.Cmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("failed to run communication service: %s", err)
	}
}
