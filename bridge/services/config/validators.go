/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"net/url"
	"regexp"

	"github.com/pkg/errors"
)

var (
	tablePrefixRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	hexAddressRegexp  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Validator is used to validate a section of the configuration
type Validator interface {
	// Validate returns nil if the passed configuration is valid, an error otherwise.
	Validate(s *Service) error
}

type ValidatorFunc func(s *Service) error

func (f ValidatorFunc) Validate(s *Service) error { return f(s) }

var validators = []Validator{
	ValidatorFunc(validatePersistence),
	ValidatorFunc(validateSubstrate),
	ValidatorFunc(validateEthereum),
	ValidatorFunc(validateSoraNet),
	ValidatorFunc(validateFinality),
}

// Validate runs all validators and returns the first failure
func (s *Service) Validate() error {
	for _, v := range validators {
		if err := v.Validate(s); err != nil {
			return err
		}
	}
	return nil
}

func validatePersistence(s *Service) error {
	p := s.Persistence()
	switch p.Type {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported persistence type [%s]", p.Type)
	}
	if len(p.DataSource) == 0 {
		return errors.New("persistence data source not set")
	}
	if len(p.TablePrefix) != 0 && !tablePrefixRegexp.MatchString(p.TablePrefix) {
		return errors.Errorf("invalid table prefix [%s]", p.TablePrefix)
	}
	if p.Notifications && p.Type != "postgres" {
		return errors.New("notifications are only supported by the postgres persistence")
	}
	return nil
}

func validateSubstrate(s *Service) error {
	c := s.Substrate()
	if len(c.Endpoint) == 0 {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "invalid substrate endpoint")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("substrate endpoint must be a websocket url, got [%s]", u.Scheme)
	}
	if len(s.Account()) == 0 {
		return errors.New("account must be set when a substrate endpoint is configured")
	}
	return nil
}

func validateEthereum(s *Service) error {
	c := s.Ethereum()
	if len(c.Endpoint) == 0 {
		return nil
	}
	if !hexAddressRegexp.MatchString(c.BridgeContract) {
		return errors.Errorf("invalid bridge contract address [%s]", c.BridgeContract)
	}
	if c.ChainID <= 0 {
		return errors.Errorf("invalid chain id [%d]", c.ChainID)
	}
	return nil
}

func validateSoraNet(s *Service) error {
	c := s.SoraNet()
	if len(c.Endpoint) == 0 {
		return nil
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "invalid soranet endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("soranet endpoint must be an http url, got [%s]", u.Scheme)
	}
	return nil
}

func validateFinality(s *Service) error {
	if p := s.Finality().Parallelism; p <= 0 {
		return errors.Errorf("finality parallelism must be positive, got [%d]", p)
	}
	return nil
}
