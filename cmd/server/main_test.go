package main

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voxelhost.ai/internal/chunkgen"
	"voxelhost.ai/internal/config"
	persistlog "voxelhost.ai/internal/persistence/log"
	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/server"
	"voxelhost.ai/internal/transport/memory"
)

func newTestServer(t *testing.T) (*server.Server, *worldsave.Provider, *memory.Listener) {
	t.Helper()
	provider, err := worldsave.Open(worldsave.Options{Dir: t.TempDir(), Seed: 7})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown() })

	gen := chunkgen.New(provider.GetChunk, 1, zap.NewNop())
	l := memory.NewListener()
	srv, err := server.New(server.Options{
		Settings: config.Default(),
		Listener: l,
		World:    provider.Sim(),
		Pipeline: gen,
		Saver:    provider,
	})
	require.NoError(t, err)
	return srv, provider, l
}

func TestMetricsHandler(t *testing.T) {
	srv, provider, l := newTestServer(t)
	l.Dial()
	_, err := srv.Tick(0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metricsHandler(srv, provider, nil, nil)(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "voxelhost_tick 1\n")
	assert.Contains(t, string(body), "voxelhost_clients 1\n")
	assert.Contains(t, string(body), `voxelhost_chunks{state="loaded"} 0`)
	assert.Contains(t, string(body), `voxelhost_save_chunks_total{result="written"} 0`)
	assert.NotContains(t, string(body), "voxelhost_index_queue_depth")
}

func TestEventSink_NilStores(t *testing.T) {
	srv, _, l := newTestServer(t)
	l.Dial()
	evs, err := srv.Tick(0)
	require.NoError(t, err)
	require.NotEmpty(t, evs)

	sink := eventSink{log: zap.NewNop(), srv: srv}
	assert.NotPanics(t, func() { sink.write(evs) })
}

func TestEventSink_LogsAndCounts(t *testing.T) {
	srv, provider, l := newTestServer(t)
	l.Dial()
	evs, err := srv.Tick(0)
	require.NoError(t, err)
	require.NotEmpty(t, evs)

	dir := t.TempDir()
	events := persistlog.NewEventLogger(dir)
	sink := eventSink{log: zap.NewNop(), events: events, srv: srv}
	sink.write(evs)
	require.NoError(t, events.Close())

	files, err := persistlog.EventFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	var kinds []string
	require.NoError(t, persistlog.ReadEvents(files[0], func(e persistlog.Entry) error {
		kinds = append(kinds, e.Kind)
		return nil
	}))
	assert.Len(t, kinds, len(evs))
	assert.Equal(t, string(evs[0].Kind), kinds[0])

	rec := httptest.NewRecorder()
	metricsHandler(srv, provider, nil, events)(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("voxelhost_events_logged_total %d\n", len(evs)))
}
