/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import stderrors "errors"

func joinErrors(errs []error) error {
	return stderrors.Join(errs...)
}
