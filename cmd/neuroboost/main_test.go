package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroboost/progress-engine/config"
	"github.com/neuroboost/progress-engine/internal/interface/http/handlers"
	"github.com/neuroboost/progress-engine/pkg/logger"
)

const cliUser = "6f1c2c8e-9a4b-4c1e-8d2a-3b5e7f9a1c0d"

func runCLI(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		return nil, err
	}
	var v map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v, nil
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "data", "cli.db"))
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func TestCLI_ProfileAndAward(t *testing.T) {
	useSQLite(t)

	profile, err := runCLI(t, "profile", "ensure", cliUser)
	require.NoError(t, err)
	assert.Equal(t, float64(0), profile["xp"])
	assert.Equal(t, float64(1), profile["level"])

	award, err := runCLI(t, "award", cliUser, "120", "--source", "task_completion")
	require.NoError(t, err)
	assert.Equal(t, float64(120), award["total_xp"])
	assert.Equal(t, float64(2), award["level"])
	assert.Equal(t, true, award["leveled_up"])

	summary, err := runCLI(t, "profile", "show", cliUser)
	require.NoError(t, err)
	assert.Equal(t, float64(120), summary["xp"])
	assert.Equal(t, float64(20), summary["xp_into_level"])
}

func TestCLI_FocusLog(t *testing.T) {
	useSQLite(t)

	res, err := runCLI(t, "focus", "log", cliUser, "--minutes", "25")
	require.NoError(t, err)
	assert.Equal(t, float64(15), res["xp_gained"])
	assert.Equal(t, float64(25), res["total_focus_minutes"])
}

func TestCLI_ArgumentErrors(t *testing.T) {
	useSQLite(t)

	tests := []struct {
		name string
		args []string
	}{
		{"award without amount", []string{"award", cliUser}},
		{"award negative amount", []string{"award", cliUser, "-5"}},
		{"award non-numeric amount", []string{"award", cliUser, "lots"}},
		{"award unknown source", []string{"award", cliUser, "10", "--source", "bribe"}},
		{"focus without minutes", []string{"focus", "log", cliUser}},
		{"ensure malformed user", []string{"profile", "ensure", "nobody"}},
		{"migrate on sqlite", []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestApp_OpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.PoolSize = 2
	a := &app{cfg: cfg, log: logger.Nop(), health: handlers.NewCompositeHealthChecker("test")}
	t.Cleanup(func() { _ = a.Close() })

	client, err := a.openRedis(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Len(t, a.closers, 1)
}

func TestApp_LogStartupRetry(t *testing.T) {
	var buf bytes.Buffer
	a := &app{log: logger.New(logger.Options{Output: &buf, Level: logger.LevelDebug, Format: logger.FormatJSON})}

	a.logStartupRetry("database")(2, errors.New("connection refused"), 750*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, `"msg":"database not reachable yet"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, "connection refused")
}
