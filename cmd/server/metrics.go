package main

import (
	"fmt"
	"net/http"

	"voxelhost.ai/internal/persistence/indexdb"
	persistlog "voxelhost.ai/internal/persistence/log"
	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/server"
)

func metricsHandler(srv *server.Server, provider *worldsave.Provider, idx *indexdb.SQLiteIndex, events *persistlog.EventLogger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := srv.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelhost_tick Current server tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_tick counter\n")
		fmt.Fprintf(rw, "voxelhost_tick %d\n", m.Tick)

		fmt.Fprintf(rw, "# HELP voxelhost_clients Connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_clients gauge\n")
		fmt.Fprintf(rw, "voxelhost_clients %d\n", m.Clients)

		fmt.Fprintf(rw, "# HELP voxelhost_entities Live entities.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_entities gauge\n")
		fmt.Fprintf(rw, "voxelhost_entities %d\n", m.Entities)

		fmt.Fprintf(rw, "# HELP voxelhost_chunks Chunks by state.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_chunks gauge\n")
		fmt.Fprintf(rw, "voxelhost_chunks{state=%q} %d\n", "loaded", m.LoadedChunks)
		fmt.Fprintf(rw, "voxelhost_chunks{state=%q} %d\n", "pending", m.PendingChunks)

		fmt.Fprintf(rw, "# HELP voxelhost_dropped_total Work discarded by the tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelhost_dropped_total{what=%q} %d\n", "stale_chunk", m.StaleChunks)
		fmt.Fprintf(rw, "voxelhost_dropped_total{what=%q} %d\n", "block_edit", m.BlocksDropped)
		fmt.Fprintf(rw, "voxelhost_dropped_total{what=%q} %d\n", "entity_change", m.ChangesLost)

		fmt.Fprintf(rw, "# HELP voxelhost_time_of_day In-game seconds since the world began.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_time_of_day gauge\n")
		fmt.Fprintf(rw, "voxelhost_time_of_day %.3f\n", m.TimeOfDay)

		fmt.Fprintf(rw, "# HELP voxelhost_step_ms Last tick duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_step_ms gauge\n")
		fmt.Fprintf(rw, "voxelhost_step_ms %.3f\n", m.StepMS)

		ps := provider.Stats()
		fmt.Fprintf(rw, "# HELP voxelhost_save_chunks_total Chunk save outcomes.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_save_chunks_total counter\n")
		fmt.Fprintf(rw, "voxelhost_save_chunks_total{result=%q} %d\n", "written", ps.Written)
		fmt.Fprintf(rw, "voxelhost_save_chunks_total{result=%q} %d\n", "skipped", ps.Skipped)
		fmt.Fprintf(rw, "voxelhost_save_chunks_total{result=%q} %d\n", "failed", ps.Failed)
		fmt.Fprintf(rw, "# HELP voxelhost_save_buffered Chunks waiting for the next save cycle.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_save_buffered gauge\n")
		fmt.Fprintf(rw, "voxelhost_save_buffered %d\n", ps.Buffered)

		if events != nil {
			fmt.Fprintf(rw, "# HELP voxelhost_events_logged_total Entries appended to the event log.\n")
			fmt.Fprintf(rw, "# TYPE voxelhost_events_logged_total counter\n")
			fmt.Fprintf(rw, "voxelhost_events_logged_total %d\n", events.Entries())
		}

		if idx == nil {
			return
		}
		is := idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelhost_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelhost_index_dropped_total{table=%q} %d\n", "chunks", is.DropChunkTotal)
		fmt.Fprintf(rw, "voxelhost_index_dropped_total{table=%q} %d\n", "save_cycles", is.DropCycleTotal)
		fmt.Fprintf(rw, "voxelhost_index_dropped_total{table=%q} %d\n", "sessions", is.DropSessionTotal)
		fmt.Fprintf(rw, "# HELP voxelhost_index_queue_depth Pending index writes.\n")
		fmt.Fprintf(rw, "# TYPE voxelhost_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelhost_index_queue_depth %d\n", is.QueueDepth)
	}
}
