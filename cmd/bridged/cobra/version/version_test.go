/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfoReportsBuild(t *testing.T) {
	defer func(v string) { Version = v }(Version)
	Version = "v1.2.3-rc1"

	lines := strings.Split(GetInfo(), "\n")
	assert.Equal(t, []string{
		"bridged:",
		" Version: v1.2.3-rc1",
		" Go version: " + runtime.Version(),
		" OS/Arch: " + runtime.GOOS + "/" + runtime.GOARCH,
	}, lines)
}

func TestVersionCommand(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		err  string
	}{
		{name: "no args"},
		{name: "trailing", args: []string{"--", "start"}, err: "trailing args detected: [start]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cmd := Cmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tc.args)

			err := cmd.Execute()
			if len(tc.err) != 0 {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out.String(), ProgramName+":\n Version: "+Version+"\n"))
			assert.Equal(t, "Print current version of bridged.", cmd.Short)
		})
	}
}
