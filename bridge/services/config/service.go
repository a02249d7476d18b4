/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"strings"
	"time"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
)

const (
	RootKey = "bridge"
)

var (
	AccountPath     = Join(RootKey, "account")
	LoggingPath     = Join(RootKey, "logging")
	PersistencePath = Join(RootKey, "persistence")
	SubstratePath   = Join(RootKey, "substrate")
	EthereumPath    = Join(RootKey, "ethereum")
	SoraNetPath     = Join(RootKey, "soranet")
	FinalityPath    = Join(RootKey, "finality")
	APIPath         = Join(RootKey, "api")
	MetricsPath     = Join(RootKey, "metrics")
)

// Join concatenates the passed keys with the key separator
func Join(keys ...string) string {
	return strings.Join(keys, ".")
}

// Provider is the read-only view over the raw configuration. *viper.Viper satisfies it.
type Provider interface {
	GetString(key string) string
	GetInt(key string) int
	GetUint64(key string) uint64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
}

// PersistenceConfig selects and parameterizes the storage driver
type PersistenceConfig struct {
	Type            string
	DataSource      string
	MaxOpenConns    int
	TablePrefix     string
	SkipCreateTable bool
	SkipPragmas     bool
	// Notifications installs LISTEN/NOTIFY triggers (postgres only) so that changes made by
	// other processes reach the finalization services
	Notifications bool
}

type SubstrateConfig struct {
	Endpoint       string
	SS58Prefix     uint16
	NativeAssetID  string
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
}

type EthereumConfig struct {
	Endpoint       string
	ChainID        int64
	BridgeContract string
	PrivateKey     string
	Confirmations  uint64
	GasLimit       uint64
}

type SoraNetConfig struct {
	Endpoint  string
	NetworkID uint32
	Timeout   time.Duration
}

type FinalityConfig struct {
	PollInterval     time.Duration
	Parallelism      int
	IntentTimeout    time.Duration
	ProofsTimeout    time.Duration
	TransferTimeout  time.Duration
	DepositTimeout   time.Duration
	PendingTxTimeout time.Duration
}

type APIConfig struct {
	Enabled bool
	Address string
}

// MetricsConfig selects the metrics provider. When disabled every metric is a no-op.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Service model the configuration service for the bridge sdk
type Service struct {
	cp Provider
}

// NewService creates a new Service configuration.
func NewService(cp Provider) *Service {
	return &Service{cp: cp}
}

// Account returns the SS58 address of the account whose transactions are tracked
func (s *Service) Account() string {
	return s.cp.GetString(AccountPath)
}

func (s *Service) Logging() logging.Config {
	return logging.Config{
		Level:      s.stringOr(Join(LoggingPath, "level"), "info"),
		Format:     s.stringOr(Join(LoggingPath, "format"), logging.ConsoleFormat),
		File:       s.cp.GetString(Join(LoggingPath, "file")),
		MaxSizeMB:  s.intOr(Join(LoggingPath, "maxSizeMB"), 100),
		MaxBackups: s.intOr(Join(LoggingPath, "maxBackups"), 5),
		MaxAgeDays: s.intOr(Join(LoggingPath, "maxAgeDays"), 30),
		Compress:   s.cp.GetBool(Join(LoggingPath, "compress")),
	}
}

func (s *Service) Persistence() PersistenceConfig {
	return PersistenceConfig{
		Type:            s.stringOr(Join(PersistencePath, "type"), "sqlite"),
		DataSource:      s.cp.GetString(Join(PersistencePath, "dataSource")),
		MaxOpenConns:    s.intOr(Join(PersistencePath, "maxOpenConns"), 10),
		TablePrefix:     s.cp.GetString(Join(PersistencePath, "tablePrefix")),
		SkipCreateTable: s.cp.GetBool(Join(PersistencePath, "skipCreateTable")),
		SkipPragmas:     s.cp.GetBool(Join(PersistencePath, "skipPragmas")),
		Notifications:   s.cp.GetBool(Join(PersistencePath, "notifications")),
	}
}

func (s *Service) Substrate() SubstrateConfig {
	prefix := uint16(69)
	if key := Join(SubstratePath, "ss58Prefix"); s.cp.IsSet(key) {
		prefix = uint16(s.cp.GetInt(key))
	}
	return SubstrateConfig{
		Endpoint:       s.cp.GetString(Join(SubstratePath, "endpoint")),
		SS58Prefix:     prefix,
		NativeAssetID:  s.stringOr(Join(SubstratePath, "nativeAssetID"), XORAssetID),
		RequestTimeout: s.durationOr(Join(SubstratePath, "requestTimeout"), 30*time.Second),
		ReconnectDelay: s.durationOr(Join(SubstratePath, "reconnectDelay"), 5*time.Second),
	}
}

func (s *Service) Ethereum() EthereumConfig {
	return EthereumConfig{
		Endpoint:       s.cp.GetString(Join(EthereumPath, "endpoint")),
		ChainID:        int64(s.intOr(Join(EthereumPath, "chainID"), 1)),
		BridgeContract: s.cp.GetString(Join(EthereumPath, "bridgeContract")),
		PrivateKey:     s.cp.GetString(Join(EthereumPath, "privateKey")),
		Confirmations:  s.uint64Or(Join(EthereumPath, "confirmations"), 12),
		GasLimit:       s.cp.GetUint64(Join(EthereumPath, "gasLimit")),
	}
}

func (s *Service) SoraNet() SoraNetConfig {
	return SoraNetConfig{
		Endpoint:  s.cp.GetString(Join(SoraNetPath, "endpoint")),
		NetworkID: uint32(s.cp.GetInt(Join(SoraNetPath, "networkID"))),
		Timeout:   s.durationOr(Join(SoraNetPath, "timeout"), 30*time.Second),
	}
}

func (s *Service) Finality() FinalityConfig {
	return FinalityConfig{
		PollInterval:     s.durationOr(Join(FinalityPath, "pollInterval"), 30*time.Second),
		Parallelism:      s.intOr(Join(FinalityPath, "parallelism"), 4),
		IntentTimeout:    s.durationOr(Join(FinalityPath, "intentTimeout"), 10*time.Minute),
		ProofsTimeout:    s.durationOr(Join(FinalityPath, "proofsTimeout"), time.Hour),
		TransferTimeout:  s.durationOr(Join(FinalityPath, "transferTimeout"), time.Hour),
		DepositTimeout:   s.durationOr(Join(FinalityPath, "depositTimeout"), 2*time.Hour),
		PendingTxTimeout: s.durationOr(Join(FinalityPath, "pendingTxTimeout"), 30*time.Minute),
	}
}

func (s *Service) API() APIConfig {
	enabled := true
	if key := Join(APIPath, "enabled"); s.cp.IsSet(key) {
		enabled = s.cp.GetBool(key)
	}
	return APIConfig{
		Enabled: enabled,
		Address: s.stringOr(Join(APIPath, "address"), ":8080"),
	}
}

func (s *Service) Metrics() MetricsConfig {
	enabled := true
	if key := Join(MetricsPath, "enabled"); s.cp.IsSet(key) {
		enabled = s.cp.GetBool(key)
	}
	return MetricsConfig{
		Enabled:   enabled,
		Namespace: s.stringOr(Join(MetricsPath, "namespace"), "bridge"),
	}
}

func (s *Service) stringOr(key, def string) string {
	if v := s.cp.GetString(key); len(v) != 0 {
		return v
	}
	return def
}

func (s *Service) intOr(key string, def int) int {
	if s.cp.IsSet(key) {
		return s.cp.GetInt(key)
	}
	return def
}

func (s *Service) uint64Or(key string, def uint64) uint64 {
	if s.cp.IsSet(key) {
		return s.cp.GetUint64(key)
	}
	return def
}

func (s *Service) durationOr(key string, def time.Duration) time.Duration {
	if v := s.cp.GetDuration(key); v > 0 {
		return v
	}
	return def
}
