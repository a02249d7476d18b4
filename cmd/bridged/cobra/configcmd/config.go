/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package configcmd

import (
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const redacted = "<redacted>"

var configPath string

// Cmd returns the Cobra Command for the configuration
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration.",
	}
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration.",
		Long:  `Loads and validates the configuration, then prints it in YAML with the defaults applied and secrets redacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			s, _, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := Effective(s)
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
	printCmd.Flags().StringVarP(&configPath, "config", "c", "", "path of the configuration file")
	cmd.AddCommand(printCmd)
	return cmd
}

// Effective renders the configuration as it is seen by the node
func Effective(s *config.Service) ([]byte, error) {
	l := s.Logging()
	p := s.Persistence()
	sub := s.Substrate()
	e := s.Ethereum()
	sn := s.SoraNet()
	f := s.Finality()
	a := s.API()
	m := s.Metrics()

	dataSource := p.DataSource
	if p.Type == "postgres" {
		dataSource = redacted
	}
	privateKey := ""
	if len(e.PrivateKey) != 0 {
		privateKey = redacted
	}

	doc := yaml.MapSlice{{Key: config.RootKey, Value: yaml.MapSlice{
		{Key: "account", Value: s.Account()},
		{Key: "logging", Value: yaml.MapSlice{
			{Key: "level", Value: l.Level},
			{Key: "format", Value: l.Format},
			{Key: "file", Value: l.File},
			{Key: "maxSizeMB", Value: l.MaxSizeMB},
			{Key: "maxBackups", Value: l.MaxBackups},
			{Key: "maxAgeDays", Value: l.MaxAgeDays},
			{Key: "compress", Value: l.Compress},
		}},
		{Key: "persistence", Value: yaml.MapSlice{
			{Key: "type", Value: p.Type},
			{Key: "dataSource", Value: dataSource},
			{Key: "maxOpenConns", Value: p.MaxOpenConns},
			{Key: "tablePrefix", Value: p.TablePrefix},
			{Key: "skipCreateTable", Value: p.SkipCreateTable},
			{Key: "skipPragmas", Value: p.SkipPragmas},
			{Key: "notifications", Value: p.Notifications},
		}},
		{Key: "substrate", Value: yaml.MapSlice{
			{Key: "endpoint", Value: sub.Endpoint},
			{Key: "ss58Prefix", Value: sub.SS58Prefix},
			{Key: "nativeAssetID", Value: sub.NativeAssetID},
			{Key: "requestTimeout", Value: sub.RequestTimeout.String()},
			{Key: "reconnectDelay", Value: sub.ReconnectDelay.String()},
		}},
		{Key: "ethereum", Value: yaml.MapSlice{
			{Key: "endpoint", Value: e.Endpoint},
			{Key: "chainID", Value: e.ChainID},
			{Key: "bridgeContract", Value: e.BridgeContract},
			{Key: "privateKey", Value: privateKey},
			{Key: "confirmations", Value: e.Confirmations},
			{Key: "gasLimit", Value: e.GasLimit},
		}},
		{Key: "soranet", Value: yaml.MapSlice{
			{Key: "endpoint", Value: sn.Endpoint},
			{Key: "networkID", Value: sn.NetworkID},
			{Key: "timeout", Value: sn.Timeout.String()},
		}},
		{Key: "finality", Value: yaml.MapSlice{
			{Key: "pollInterval", Value: f.PollInterval.String()},
			{Key: "parallelism", Value: f.Parallelism},
			{Key: "intentTimeout", Value: f.IntentTimeout.String()},
			{Key: "proofsTimeout", Value: f.ProofsTimeout.String()},
			{Key: "transferTimeout", Value: f.TransferTimeout.String()},
			{Key: "depositTimeout", Value: f.DepositTimeout.String()},
			{Key: "pendingTxTimeout", Value: f.PendingTxTimeout.String()},
		}},
		{Key: "api", Value: yaml.MapSlice{
			{Key: "enabled", Value: a.Enabled},
			{Key: "address", Value: a.Address},
		}},
		{Key: "metrics", Value: yaml.MapSlice{
			{Key: "enabled", Value: m.Enabled},
			{Key: "namespace", Value: m.Namespace},
		}},
	}}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed marshalling configuration")
	}
	return out, nil
}
