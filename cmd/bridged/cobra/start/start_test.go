/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package start

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsInvalidConfiguration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bridge:\n  persistence:\n    type: sqlite\n"), 0o600))

	cmd := Cmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence data source not set")

	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed reading configuration file")
}
