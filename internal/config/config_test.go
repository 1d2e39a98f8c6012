package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.EpollWaitTimeoutMS)
	assert.Equal(t, 64*1024, cfg.MaxLogSize)
	assert.Equal(t, RunnerModeProcess, cfg.RunnerMode)
	assert.Equal(t, "/opt/matchdriver/simulator", cfg.SimulatorPath)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("EPOLL_WAIT_TIMEOUT", "50")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("SIMULATOR_PATH", "/usr/local/bin/sim")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.EpollWaitTimeoutMS)
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, "/usr/local/bin/sim", cfg.SimulatorPath)
}

func TestLoad_InvalidRunnerMode(t *testing.T) {
	t.Setenv("RUNNER_MODE", "kubernetes")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("MATCHWORKER_LOG_LEVEL", "not-a-level")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedIntFallsBackToDefault(t *testing.T) {
	t.Setenv("MAX_LOG_SIZE", "not-an-int")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, cfg.MaxLogSize)
}
