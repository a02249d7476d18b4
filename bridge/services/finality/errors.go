/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package finality

import (
	"github.com/pkg/errors"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var (
	// ErrNotReady leaves the operation in its status until the next sweep
	ErrNotReady = errors.New("not ready")
	// ErrCancelled stops the processing silently, the operation moved on or the service is stopping
	ErrCancelled = errors.New("cancelled")
)

// IsSilent returns true for the errors that end a run without being a failure
func IsSilent(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrCancelled) || errors.Is(err, driver.ErrStatusConflict)
}
