package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztkent/lux-threshold-meter/internal/luxmeter"
)

func parseArgs(t *testing.T, argv ...string) ProgramArgs {
	t.Helper()
	var args ProgramArgs
	_, err := flags.ParseArgs(&args, argv)
	require.NoError(t, err)
	return args
}

func TestRunSingleSetting(t *testing.T) {
	args := parseArgs(t, "--gain", "1/8", "--integration-time", "100ms", "-l", "1000", "-l", "5000", "--json")

	var out bytes.Buffer
	require.NoError(t, run(args, &out))

	var thresholds []luxmeter.Threshold
	require.NoError(t, json.Unmarshal(out.Bytes(), &thresholds))
	require.Len(t, thresholds, 2)
	assert.Equal(t, uint16(2170), thresholds[0].Raw)
	assert.False(t, thresholds[0].Corrected)
	assert.True(t, thresholds[1].Corrected)
}

func TestRunAllSettings(t *testing.T) {
	args := parseArgs(t, "--all", "--lux", "250")

	var out bytes.Buffer
	require.NoError(t, run(args, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1+24)
	assert.True(t, strings.HasPrefix(lines[0], "GAIN"))
}

func TestRunDefaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(parseArgs(t), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 1+len(luxmeter.DefaultTableLux))
}

func TestRunInvalidSettings(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(parseArgs(t, "--gain", "3"), &out))
	assert.Error(t, run(parseArgs(t, "--integration-time", "1s"), &out))
}
