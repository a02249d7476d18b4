/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
)

var logger = logging.MustGetLogger("utils")

// RetryRunner receives a function that potentially fails and retries according to the specified strategy
type RetryRunner interface {
	Run(ctx context.Context, runner func() error) error
}

// Infinitely makes a RetryRunner retry until the function succeeds or the context is done
const Infinitely = -1

// ErrMaxRetriesReached is returned, joined with the collected errors, when all attempts failed
var ErrMaxRetriesReached = errors.New("max retries reached")

// NewRetryRunner returns a runner that invokes the function at most maxTimes,
// waiting delay between attempts. With expBackoff the delay doubles after each failure, up to maxDelay if positive.
func NewRetryRunner(maxTimes int, delay time.Duration, expBackoff bool) *retryRunner {
	return &retryRunner{
		initialDelay: delay,
		expBackoff:   expBackoff,
		maxTimes:     maxTimes,
	}
}

type retryRunner struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	expBackoff   bool
	maxTimes     int
}

// WithMaxDelay caps the exponential backoff
func (f *retryRunner) WithMaxDelay(d time.Duration) *retryRunner {
	f.maxDelay = d
	return f
}

func (f *retryRunner) nextDelay(current time.Duration) time.Duration {
	if !f.expBackoff {
		return current
	}
	next := 2 * current
	if f.maxDelay > 0 && next > f.maxDelay {
		return f.maxDelay
	}
	return next
}

func (f *retryRunner) Run(ctx context.Context, runner func() error) error {
	var errs []error
	delay := f.initialDelay
	for i := 0; f.maxTimes < 0 || i < f.maxTimes; i++ {
		err := runner()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		logger.Debugf("attempt %d failed: %v", i+1, err)
		if f.maxTimes >= 0 && i == f.maxTimes-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(joinErrors(errs), "context done after %d attempts: %v", i+1, ctx.Err())
		case <-time.After(delay):
		}
		delay = f.nextDelay(delay)
	}
	return errors.Wrap(joinErrors(append(errs, ErrMaxRetriesReached)), "retry runner")
}
