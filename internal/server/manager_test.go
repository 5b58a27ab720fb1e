package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	})
	return NewManager(mux, cfg, zap.NewNop())
}

func TestManager_StartServesAndShutsDown(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStartFails(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	assert.Error(t, m.Start())
}

func TestManager_StartAfterShutdownFails(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.Error(t, m.Start())
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_AddrBeforeStart(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, "127.0.0.1:0", m.Addr())
}

func TestManager_ListenFailurePropagates(t *testing.T) {
	first := newTestManager(t)
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	cfg := DefaultConfig()
	cfg.Addr = first.Addr() // 端口已被占用
	second := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Error(t, second.Start())
}
