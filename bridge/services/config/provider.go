/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// XORAssetID is the id of the SORA native asset
	XORAssetID = "0x0200000000000000000000000000000000000000000000000000000000000000"

	envKeyReplacement = "_"
)

// NewProvider reads the yaml file at path, if any, and overlays BRIDGE_* environment variables.
// For example, bridge.substrate.endpoint is overridden by BRIDGE_SUBSTRATE_ENDPOINT.
func NewProvider(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeyReplacement))
	v.AutomaticEnv()
	if len(path) == 0 {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed reading configuration file [%s]", path)
	}
	return v, nil
}

// Load creates the configuration service for the file at path and validates it
func Load(path string) (*Service, *viper.Viper, error) {
	v, err := NewProvider(path)
	if err != nil {
		return nil, nil, err
	}
	s := NewService(v)
	if err := s.Validate(); err != nil {
		return nil, nil, errors.WithMessagef(err, "invalid configuration [%s]", path)
	}
	return s, v, nil
}
