package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	persistlog "voxelhost.ai/internal/persistence/log"
	"voxelhost.ai/internal/persistence/boltstore"
	"voxelhost.ai/internal/persistence/worldsave"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	worldCmd(os.Args[1:])
}

// worldCmd summarises a world folder without starting the server.
func worldCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dir := fs.String("world", "./worldsave", "world folder")
	_ = fs.Parse(args)

	sim, err := worldsave.LoadGlobals(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load world:", err)
		os.Exit(1)
	}
	out := struct {
		Dir        string   `json:"dir"`
		Seed       uint32   `json:"seed"`
		Regions    int      `json:"regions"`
		Locations  []string `json:"locations"`
		ChunkFiles int      `json:"chunk_files"`
		BoltChunks *int     `json:"bolt_chunks,omitempty"`
	}{Dir: *dir, Seed: sim.Seed, Regions: len(sim.Regions)}
	for _, l := range sim.Locations {
		out.Locations = append(out.Locations, l.Name)
	}

	ents, err := os.ReadDir(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		if !e.IsDir() && strings.Count(e.Name(), "_") == 1 {
			out.ChunkFiles++
		}
	}
	dbPath := filepath.Join(*dir, "chunks.db")
	if _, err := os.Stat(dbPath); err == nil {
		bs, err := boltstore.Open(dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open chunk db (is the server running?):", err)
			os.Exit(1)
		}
		n, err := bs.Len()
		_ = bs.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "count chunks:", err)
			os.Exit(1)
		}
		out.BoltChunks = &n
	}
	printJSON(out)
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dir := fs.String("dir", "./worldsave/events", "event log directory")
	alias := fs.String("alias", "", "only events for this alias")
	kind := fs.String("kind", "", "only events of this kind")
	fromTick := fs.Uint64("from_tick", 0, "first tick (inclusive)")
	_ = fs.Parse(args)

	files, err := persistlog.EventFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event files found in", *dir)
		os.Exit(1)
	}
	n := 0
	for i, path := range files {
		err := persistlog.ReadEvents(path, func(e persistlog.Entry) error {
			if e.Tick < *fromTick || (*alias != "" && e.Alias != *alias) || (*kind != "" && e.Kind != *kind) {
				return nil
			}
			n++
			printJSON(e)
			return nil
		})
		if err != nil && i == len(files)-1 {
			// The newest segment may still be open and end mid-frame.
			fmt.Fprintln(os.Stderr, "warning: truncated tail:", err)
		} else if err != nil {
			fmt.Fprintln(os.Stderr, "read events:", err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "%d events from %d files\n", n, len(files))
}

func printJSON(v any) { writeJSON(os.Stdout, v) }

func writeJSON(w io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(w, string(b))
}
