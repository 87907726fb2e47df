// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	output, err := executeCommand(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "check", "seed", "migrate"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	_, err := executeCommand(t, "--config=/etc/permcore.yaml", "--help")
	require.NoError(t, err)
	assert.Equal(t, "/etc/permcore.yaml", configFile)
}

func TestRootCommand_VersionFlag(t *testing.T) {
	configFile = ""
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand(t, "nonexistent")
	require.Error(t, err)
}

func TestServeCommand_RequiresDatabaseURL(t *testing.T) {
	_, err := executeCommand(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url")
}

func TestCheckCommand_BadSubjectRef(t *testing.T) {
	_, err := executeCommand(t, "check", "no-colon", "chat")
	require.Error(t, err)
}

func TestCheckCommand_BadContextPair(t *testing.T) {
	_, err := executeCommand(t, "check", "user:alice", "chat", "--context", "nether")
	require.Error(t, err)
}

func TestSeedCommand_MissingFile(t *testing.T) {
	_, err := executeCommand(t, "seed", "/nonexistent/seed.yaml")
	require.Error(t, err)
}

func TestMigrateCommand_RequiresDatabaseURL(t *testing.T) {
	for _, sub := range []string{"up", "down", "version"} {
		_, err := executeCommand(t, "migrate", sub)
		require.Error(t, err, "migrate %s without database-url", sub)
		assert.Contains(t, err.Error(), "database-url")
	}
}
