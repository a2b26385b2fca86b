package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelhost.ai/internal/chunkgen"
	"voxelhost.ai/internal/config"
	"voxelhost.ai/internal/logging"
	"voxelhost.ai/internal/persistence/boltstore"
	"voxelhost.ai/internal/persistence/indexdb"
	persistlog "voxelhost.ai/internal/persistence/log"
	"voxelhost.ai/internal/persistence/worldsave"
	"voxelhost.ai/internal/server"
	"voxelhost.ai/internal/transport"
	"voxelhost.ai/internal/transport/tcp"
	"voxelhost.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./settings.yaml", "settings file (written with defaults if missing)")
		httpAddr   = flag.String("addr", "", "http listen address (overrides settings address)")
	)
	flag.Parse()

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load settings: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Address = *httpAddr
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if created {
		logger.Info("wrote default settings", zap.String("path", *configPath))
	}

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Settings, logger *zap.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	var store worldsave.ChunkStore
	switch cfg.Storage {
	case config.StorageBolt:
		bs, err := boltstore.Open(filepath.Join(cfg.WorldFolder, "chunks.db"))
		if err != nil {
			return fmt.Errorf("open chunk db: %w", err)
		}
		store = bs
	default:
		fs, err := worldsave.NewFileStore(cfg.WorldFolder)
		if err != nil {
			return fmt.Errorf("open world folder: %w", err)
		}
		store = fs
	}

	var idx *indexdb.SQLiteIndex
	if cfg.IndexDB != "" {
		var err error
		if idx, err = indexdb.OpenSQLite(cfg.IndexDB); err != nil {
			return fmt.Errorf("open index db: %w", err)
		}
		defer idx.Close()
	}
	var events *persistlog.EventLogger
	if cfg.EventLog {
		events = persistlog.NewEventLogger(filepath.Join(cfg.WorldFolder, "events"))
		defer events.Close()
	}

	opts := worldsave.Options{
		Dir:      cfg.WorldFolder,
		Seed:     cfg.WorldSeed,
		Interval: cfg.SaveInterval,
		Store:    store,
		Log:      logger,
	}
	if idx != nil {
		opts.Recorder = idx
	}
	provider, err := worldsave.Open(opts)
	if err != nil {
		return fmt.Errorf("open world: %w", err)
	}
	provider.StartSaveLoop()

	gen := chunkgen.New(provider.GetChunk, cfg.GenerationWorkers, logger)
	gen.Start(ctx)

	wsSrv := ws.NewServer(logger)
	listeners := []transport.Listener{wsSrv}
	var tcpLn *tcp.Listener
	if cfg.TCPAddress != "" {
		if tcpLn, err = tcp.Listen(cfg.TCPAddress, logger); err != nil {
			return fmt.Errorf("tcp listen: %w", err)
		}
		listeners = append(listeners, tcpLn)
	}

	srv, err := server.New(server.Options{
		Settings: cfg,
		Listener: transport.Join(listeners...),
		World:    provider.Sim(),
		Pipeline: gen,
		Saver:    provider,
		Log:      logger,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(srv, provider, idx, events))
	httpSrv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sink := eventSink{log: logger, events: events, idx: idx, srv: srv}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Run(gctx, sink.write)
		sink.write(srv.Shutdown("server shutting down"))
		return err
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Address))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if tcpLn != nil {
		g.Go(func() error {
			logger.Info("tcp listening", zap.Stringer("addr", tcpLn.Addr()))
			return tcpLn.Serve(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		_ = wsSrv.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return httpSrv.Shutdown(ctx2)
	})

	runErr := g.Wait()

	if err := gen.Close(); err != nil {
		logger.Warn("generation workers", zap.Error(err))
	}
	if err := provider.Shutdown(); err != nil {
		logger.Error("final save failed", zap.Error(err))
	}
	if idx != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Flush(flushCtx); err != nil {
			logger.Warn("index flush", zap.Error(err))
		}
		flushCancel()
	}
	return runErr
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
