/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"context"
	errors2 "errors"
	"os"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/api"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/ethereum"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/events"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/extrinsic"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality/deposit"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/finality/withdraw"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/soranet"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/subscription"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/codec"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/substrate/keys"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/tracing"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/dig"
)

var logger = logging.MustGetLogger("node")

// Node assembles the bridge services in a dig container and runs them as an ifrit process group
type Node struct {
	config    *config.Service
	container *dig.Container
	closers   []func() error
}

func New(cfg *config.Service) *Node {
	return &Node{config: cfg, container: dig.New()}
}

// Container returns the dig container holding the node services
func (n *Node) Container() *dig.Container {
	return n.container
}

type metricsOut struct {
	dig.Out
	Provider metrics.Provider
	// Gatherer is nil when metrics are disabled
	Gatherer prometheus.Gatherer
}

// Install registers the constructors of all services
func (n *Node) Install() error {
	c := n.container
	err := errors2.Join(
		c.Provide(func() *config.Service { return n.config }),
		c.Provide(newMetrics),
		c.Provide(func(mp metrics.Provider) trace.TracerProvider { return tracing.NewProvider(nil, mp) }),
		c.Provide(events.NewService),
		c.Provide(func(s *events.Service) events.Publisher { return s }),
		c.Provide(n.newStores),
		c.Provide(n.newConnection),
		c.Provide(func() codec.Decoder { return codec.NewScaleDecoder() }),
		c.Provide(n.newMetadataProvider),
		c.Provide(func(cfg *config.Service) *extrinsic.Processor {
			s := cfg.Substrate()
			return extrinsic.NewProcessor(s.SS58Prefix, s.NativeAssetID)
		}),
		c.Provide(newTransactionSubscription),
		c.Provide(newSubscriptionContainer),
		c.Provide(func(cfg *config.Service) *soranet.Client {
			s := cfg.SoraNet()
			if len(s.Endpoint) == 0 {
				return nil
			}
			return soranet.NewClient(s.Endpoint, s.Timeout)
		}),
		c.Provide(n.newGateway),
		c.Provide(newWithdrawOpts),
		c.Provide(newDepositOpts),
		c.Provide(func(cfg *config.Service, stores *driver.Stores, gatherer prometheus.Gatherer) *api.Server {
			a := cfg.API()
			if !a.Enabled {
				return nil
			}
			return api.NewServer(a.Address, stores, gatherer)
		}),
	)
	if err != nil {
		return errors.WithMessagef(err, "failed setting up dig container")
	}
	return nil
}

// newMetrics returns a registry-backed provider, or the disabled provider
func newMetrics(cfg *config.Service) metricsOut {
	m := cfg.Metrics()
	if !m.Enabled {
		return metricsOut{Provider: metrics.Disabled{}}
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metricsOut{
		Provider: metrics.WithNamespace(metrics.NewPrometheusProvider(registry), m.Namespace),
		Gatherer: registry,
	}
}

func (n *Node) newStores(cfg *config.Service) (*driver.Stores, error) {
	stores, err := storage.NewDefaultManager().Open(cfg.Persistence())
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, stores.Close)
	return stores, nil
}

func (n *Node) newConnection(cfg *config.Service) *subscription.Redialer {
	r := subscription.NewRedialer(cfg.Substrate().Endpoint)
	n.closers = append(n.closers, r.Close)
	return r
}

func (n *Node) newMetadataProvider(conn *subscription.Redialer, decoder codec.Decoder) (*codec.MetadataProvider, error) {
	p, err := codec.NewMetadataProvider(conn, decoder)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, func() error { p.Close(); return nil })
	return p, nil
}

func accountID(cfg *config.Service) ([]byte, error) {
	id, err := keys.AccountID(cfg.Account(), cfg.Substrate().SS58Prefix)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid account [%s]", cfg.Account())
	}
	return id, nil
}

func newTransactionSubscription(
	cfg *config.Service,
	conn *subscription.Redialer,
	md *codec.MetadataProvider,
	decoder codec.Decoder,
	processor *extrinsic.Processor,
	stores *driver.Stores,
	publisher events.Publisher,
	tp trace.TracerProvider,
) (*subscription.TransactionSubscription, error) {
	id, err := accountID(cfg)
	if err != nil {
		return nil, err
	}
	return subscription.NewTransactionSubscription(conn, md, decoder, processor, stores.Transactions, subscription.TransactionSubscriptionOpts{
		AccountID:      keys.Hex(id),
		PendingTimeout: cfg.Finality().PendingTxTimeout,
		Publisher:      publisher,
		Tracer:         tp.Tracer("subscription"),
	}), nil
}

// newSubscriptionContainer follows the block number, driving the transaction history, and the account info
func newSubscriptionContainer(
	cfg *config.Service,
	conn *subscription.Redialer,
	txs *subscription.TransactionSubscription,
	stores *driver.Stores,
	publisher events.Publisher,
	mp metrics.Provider,
) (*subscription.StorageSubscriptionContainer, error) {
	id, err := accountID(cfg)
	if err != nil {
		return nil, err
	}
	accountKey := keys.Hex(keys.SystemAccount(id))
	return subscription.NewStorageSubscriptionContainer(conn, cfg.Substrate().ReconnectDelay,
		subscription.NewBlockNumberSubscription(stores.Storage, txs, publisher, subscription.WithMetrics(mp)),
		subscription.NewEventEmittingStorageSubscription(
			accountKey, accountKey, stores.Storage, publisher,
			subscription.StorageChangedEvent(events.BalanceChanged),
			subscription.WithMetrics(mp),
		),
	), nil
}

// newGateway returns nil when no ethereum endpoint is configured
func (n *Node) newGateway(cfg *config.Service) (*ethereum.Gateway, error) {
	e := cfg.Ethereum()
	if len(e.Endpoint) == 0 {
		return nil, nil
	}
	g, client, err := ethereum.Dial(context.Background(), e)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, closeEthClient(client))
	return g, nil
}

func closeEthClient(c *ethclient.Client) func() error {
	return func() error {
		c.Close()
		return nil
	}
}

func newWithdrawOpts(cfg *config.Service, publisher events.Publisher, tp trace.TracerProvider, mp metrics.Provider) withdraw.Opts {
	o := withdraw.NewOpts(cfg.Finality(), cfg.Ethereum(), cfg.SoraNet())
	o.Publisher = publisher
	o.TracerProvider = tp
	o.Metrics = mp
	return o
}

func newDepositOpts(cfg *config.Service, publisher events.Publisher, tp trace.TracerProvider, mp metrics.Provider) deposit.Opts {
	o := deposit.NewOpts(cfg.Finality(), cfg.Ethereum(), cfg.SoraNet())
	o.Publisher = publisher
	o.TracerProvider = tp
	o.Metrics = mp
	return o
}

type membersIn struct {
	dig.In
	Config       *config.Service
	Stores       *driver.Stores
	SoraNet      *soranet.Client
	Gateway      *ethereum.Gateway
	WithdrawOpts withdraw.Opts
	DepositOpts  deposit.Opts
	API          *api.Server
}

// Members returns the process group members in start order.
// Components whose endpoints are not configured are left out.
func (n *Node) Members() (grouper.Members, error) {
	var container *subscription.StorageSubscriptionContainer
	if len(n.config.Substrate().Endpoint) != 0 {
		if err := n.container.Invoke(func(c *subscription.StorageSubscriptionContainer) { container = c }); err != nil {
			return nil, errors.WithMessagef(err, "failed assembling subscriptions")
		}
	}

	var members grouper.Members
	err := n.container.Invoke(func(in membersIn) {
		if in.Stores.Listener != nil {
			members = append(members, grouper.Member{Name: "listener", Runner: contextRunner(in.Stores.Listener.Listen)})
		}
		if container != nil {
			members = append(members, grouper.Member{Name: "subscriptions", Runner: starterRunner(container)})
		}
		if in.SoraNet != nil {
			proofs := withdraw.NewProofsFinalizationService(in.Stores, in.SoraNet, in.WithdrawOpts)
			members = append(members, grouper.Member{Name: "withdraw_proofs", Runner: contextRunner(proofs.Run)})
		}
		if in.Gateway != nil {
			if in.Gateway.CanSign() {
				transfer := withdraw.NewTransferFinalizationService(in.Stores, in.Gateway, in.WithdrawOpts)
				members = append(members, grouper.Member{Name: "withdraw_transfer", Runner: contextRunner(transfer.Run)})
			} else {
				logger.Warnf("no ethereum private key configured, withdrawals will not be transferred")
			}
		}
		if in.Gateway != nil && in.SoraNet != nil {
			deposits := deposit.NewFinalizationService(in.Stores, in.Gateway, in.SoraNet, in.DepositOpts)
			members = append(members, grouper.Member{Name: "deposit", Runner: contextRunner(deposits.Run)})
		}
		if in.API != nil {
			members = append(members, grouper.Member{Name: "api", Runner: in.API})
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed assembling node")
	}
	return members, nil
}

// Run starts the members in order and stops them in reverse order on SIGINT or SIGTERM
func (n *Node) Run() error {
	defer n.close()
	members, err := n.Members()
	if err != nil {
		return err
	}
	for _, m := range members {
		logger.Infof("starting [%s]", m.Name)
	}
	process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members), syscall.SIGTERM, os.Interrupt))
	err = <-process.Wait()
	if err != nil {
		return errors.WithMessagef(err, "node stopped")
	}
	logger.Infof("node stopped")
	return nil
}

func (n *Node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			logger.Warnf("failed closing: %s", err)
		}
	}
	n.closers = nil
	if err := logging.Sync(); err != nil {
		logger.Debugf("failed syncing logger: %s", err)
	}
}
