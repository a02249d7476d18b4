/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/config"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/metrics"
	"github.com/spf13/viper"
	"github.com/tedsuo/ifrit"
	"go.uber.org/goleak"
)

func testConfig(t *testing.T, values map[string]any) *config.Service {
	v := viper.New()
	v.Set("bridge.persistence.type", "sqlite")
	v.Set("bridge.persistence.dataSource", "file:"+filepath.Join(t.TempDir(), "node.db"))
	v.Set("bridge.api.address", "127.0.0.1:0")
	for k, val := range values {
		v.Set(k, val)
	}
	return config.NewService(v)
}

func memberNames(t *testing.T, n *Node) []string {
	members, err := n.Members()
	Expect(err).ToNot(HaveOccurred())
	var names []string
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func TestMembersWithoutEndpoints(t *testing.T) {
	RegisterTestingT(t)
	n := New(testConfig(t, nil))
	Expect(n.Install()).To(Succeed())
	defer n.close()

	Expect(memberNames(t, n)).To(Equal([]string{"api"}))
}

func TestMembersWithRemoteServices(t *testing.T) {
	RegisterTestingT(t)
	n := New(testConfig(t, map[string]any{
		"bridge.soranet.endpoint": "http://127.0.0.1:1",
		"bridge.api.enabled":      false,
	}))
	Expect(n.Install()).To(Succeed())
	defer n.close()

	Expect(memberNames(t, n)).To(Equal([]string{"withdraw_proofs"}))
}

func TestMembersFailOnInvalidAccount(t *testing.T) {
	RegisterTestingT(t)
	n := New(testConfig(t, map[string]any{
		"bridge.substrate.endpoint": "ws://127.0.0.1:1",
		"bridge.account":            "not-an-address",
	}))
	Expect(n.Install()).To(Succeed())
	defer n.close()

	_, err := n.Members()
	Expect(err).To(HaveOccurred())
	Expect(err.Error()).To(ContainSubstring("invalid account"))
}

func TestMetricsProvider(t *testing.T) {
	RegisterTestingT(t)
	n := New(testConfig(t, map[string]any{"bridge.metrics.namespace": "test"}))
	Expect(n.Install()).To(Succeed())
	defer n.close()

	err := n.Container().Invoke(func(mp metrics.Provider, g prometheus.Gatherer) {
		mp.NewCounter(metrics.CounterOpts{Name: "calls", Help: "calls"}).Add(2)
		families, err := g.Gather()
		Expect(err).ToNot(HaveOccurred())
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		Expect(names).To(ContainElement("test_calls"))
	})
	Expect(err).ToNot(HaveOccurred())

	disabled := New(testConfig(t, map[string]any{"bridge.metrics.enabled": false}))
	Expect(disabled.Install()).To(Succeed())
	defer disabled.close()
	err = disabled.Container().Invoke(func(mp metrics.Provider, g prometheus.Gatherer) {
		Expect(mp).To(Equal(metrics.Disabled{}))
		Expect(g).To(BeNil())
	})
	Expect(err).ToNot(HaveOccurred())
}

type fakeStarter struct {
	started, stopped atomic.Bool
	err              error
}

func (f *fakeStarter) Start(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.started.Store(true)
	return nil
}

func (f *fakeStarter) Stop() { f.stopped.Store(true) }

func TestRunners(t *testing.T) {
	RegisterTestingT(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var cancelled atomic.Bool
	p := ifrit.Invoke(contextRunner(func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return nil
	}))
	p.Signal(os.Interrupt)
	Eventually(p.Wait()).Should(Receive(BeNil()))
	Expect(cancelled.Load()).To(BeTrue())

	p = ifrit.Invoke(contextRunner(func(ctx context.Context) error {
		return errors.New("boom")
	}))
	Eventually(p.Wait()).Should(Receive(MatchError("boom")))

	s := &fakeStarter{}
	p = ifrit.Invoke(starterRunner(s))
	Expect(s.started.Load()).To(BeTrue())
	p.Signal(os.Interrupt)
	Eventually(p.Wait()).Should(Receive(BeNil()))
	Expect(s.stopped.Load()).To(BeTrue())

	failing := &fakeStarter{err: errors.New("no connection")}
	p = ifrit.Invoke(starterRunner(failing))
	Eventually(p.Wait()).Should(Receive(MatchError("no connection")))
	Expect(failing.stopped.Load()).To(BeFalse())
}
