package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/config"

	"github.com/hupe1980/realtimemesh/supervisor"
	"github.com/hupe1980/realtimemesh/tool"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "validate", "--scenario", filepath.Join("testdata", "support.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, `scenario "support" is valid (2 agents, root front)`)
}

func TestValidateCmd_MissingScenario(t *testing.T) {
	_, err := execute(t, "validate", "--scenario", filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
}

func TestAgentsCmd(t *testing.T) {
	out, err := execute(t, "agents", "--scenario", filepath.Join("testdata", "support.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "* front - Answers general questions.")
	assert.Contains(t, out, "  billing - Handles invoices and refunds.")
	assert.Contains(t, out, "    "+supervisor.ToolName)
	assert.Contains(t, out, "    "+tool.TransferToolName("billing"))
	assert.Contains(t, out, "    "+tool.AlarmToolName)
}

func TestAgentsCmd_Reroot(t *testing.T) {
	out, err := execute(t, "agents", "--scenario", filepath.Join("testdata", "support.yaml"), "--root", "billing")
	require.NoError(t, err)
	assert.Contains(t, out, "* billing")

	_, err = execute(t, "agents", "--scenario", filepath.Join("testdata", "support.yaml"), "--root", "nobody")
	require.Error(t, err)
}

func TestRunFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	v := bindRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--opening-message", "Hi, I'm here for my appointment.",
		"--max-duration", "2m",
		"--log-level", "debug",
	}))

	cfg, err := config.LoadFrom(v, "")
	require.NoError(t, err)
	assert.Equal(t, "Hi, I'm here for my appointment.", cfg.Session.OpeningMessage)
	assert.Equal(t, 2*time.Minute, cfg.Session.MaxDuration)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestRunFlags_Defaults(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	v := bindRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := config.LoadFrom(v, "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Session.OpeningMessage)
	assert.Zero(t, cfg.Session.MaxDuration)
}
