/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package start

import (
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/node"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/spf13/cobra"
)

var logger = logging.MustGetLogger("bridged")

var configPath string

// Cmd returns the Cobra Command for Start
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge node.",
		Long:  `Starts the subscriptions, the finalization services and the HTTP API, and runs them until SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return Start(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path of the configuration file")
	return cmd
}

// Start runs the node configured by the file at path
func Start(path string) error {
	s, _, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logging.Init(s.Logging()); err != nil {
		return errors.WithMessagef(err, "failed initializing logging")
	}
	logger.Infof("starting node with configuration [%s]", path)

	n := node.New(s)
	if err := n.Install(); err != nil {
		return err
	}
	return n.Run()
}
