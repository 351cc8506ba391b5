package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = parseLevel("chatty")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer f.Close()

	for _, format := range []string{"auto", "text", "json"} {
		logger, err := newLogger(f, format, slog.LevelInfo)
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}
	_, err = newLogger(f, "xml", slog.LevelInfo)
	assert.Error(t, err)
}

func TestOpenStoreAndCache_Defaults(t *testing.T) {
	ctx := context.Background()
	cfg := dealflow.DefaultConfig()
	logger := slog.New(slog.DiscardHandler)

	st, err := openStore(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	c, closeFn, err := openCache(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.Memory{}, c)
	assert.NoError(t, closeFn())
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	t.Setenv("DEALFLOW_DATABASE_URL", "")
	root := newRootCommand()
	root.SetArgs([]string{"migrate", "--config", writeConfig(t, "http:\n  addr: \":9090\"\n")})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
