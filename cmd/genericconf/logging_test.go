// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
)

func TestToSlogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"crit":    log.LevelCrit,
		"ERROR":   log.LevelError,
		"warning": log.LevelWarn,
		"Info":    log.LevelInfo,
		"debug":   log.LevelDebug,
		"TRACE":   log.LevelTrace,
	} {
		got, err := ToSlogLevel(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
	_, err := ToSlogLevel("loud")
	require.Error(t, err)
}

func TestParseLogType(t *testing.T) {
	got, err := ParseLogType("terminal")
	require.NoError(t, err)
	require.Equal(t, "plaintext", got)
	got, err = ParseLogType("JSON")
	require.NoError(t, err)
	require.Equal(t, "json", got)
	_, err = ParseLogType("xml")
	require.Error(t, err)
}

func TestInitLogTeesToExtraWriter(t *testing.T) {
	previous := log.Root()
	defer log.SetDefault(previous)
	var buf bytes.Buffer
	dir := t.TempDir()
	fileConfig := DefaultFileLoggingConfig
	fileConfig.Enable = true
	require.NoError(t, InitLog("json", "info", &fileConfig, DefaultPathResolver(dir), &buf))
	defer func() { require.NoError(t, globalFileLogger.close()) }()

	log.Debug("hidden")
	log.Info("visible", "key", 7)
	require.Contains(t, buf.String(), "visible")
	require.NotContains(t, buf.String(), "hidden")
	require.FileExists(t, filepath.Join(dir, fileConfig.File))
}

func TestInitLogRejectsUnknownLevel(t *testing.T) {
	require.Error(t, InitLog("plaintext", "loud", &DefaultFileLoggingConfig, DefaultPathResolver(""), nil))
}
