/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"os"

	"github.com/sora-xor/sora-bridge-sdk/cmd/bridged/cobra/configcmd"
	"github.com/sora-xor/sora-bridge-sdk/cmd/bridged/cobra/start"
	"github.com/sora-xor/sora-bridge-sdk/cmd/bridged/cobra/version"
	"github.com/spf13/cobra"
)

// The main command describes the service and defaults to printing the help message.
var mainCmd = &cobra.Command{Use: "bridged"}

func main() {
	mainCmd.AddCommand(start.Cmd())
	mainCmd.AddCommand(configcmd.Cmd())
	mainCmd.AddCommand(version.Cmd())

	// On failure Cobra prints the usage message and error string, so we only
	// need to exit with a non-0 status
	if mainCmd.Execute() != nil {
		os.Exit(1)
	}
}
