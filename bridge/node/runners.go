/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"context"
	"os"

	"github.com/tedsuo/ifrit"
)

// Starter is a component started and stopped explicitly
type Starter interface {
	Start(ctx context.Context) error
	Stop()
}

// contextRunner adapts a blocking function to ifrit.Runner.
// The function is ready as soon as it is called and is stopped by cancelling its context.
func contextRunner(run func(ctx context.Context) error) ifrit.Runner {
	return ifrit.RunFunc(func(signals <-chan os.Signal, ready chan<- struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- run(ctx)
		}()
		close(ready)

		select {
		case err := <-done:
			return err
		case <-signals:
			cancel()
			return <-done
		}
	})
}

// starterRunner adapts a Starter to ifrit.Runner. The runner is ready once Start returns.
func starterRunner(s Starter) ifrit.Runner {
	return ifrit.RunFunc(func(signals <-chan os.Signal, ready chan<- struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := s.Start(ctx); err != nil {
			return err
		}
		close(ready)
		<-signals
		s.Stop()
		return nil
	})
}
