package main

import (
	"context"
	"fmt"
	"sync"

	"market-feed/src/config"
	"market-feed/src/grpc_control"
	"market-feed/src/logger"
	"market-feed/src/market"
	"market-feed/src/server"
	"market-feed/src/storage"
	"market-feed/src/utils"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the broadcast server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

// -----------------------------------------------------------------------------

func runServe(ctx context.Context, configPath string) error {
	// 1. Config
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return err
	}

	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// 2. Market state, shared by the engine and the server
	seed := market.DefaultSeed()
	if cfg.Feed.SeedFile != "" {
		seed, err = market.LoadSeed(cfg.Feed.SeedFile)
		if err != nil {
			appLogger.Error("Failed to load seed: %v", err)
			return err
		}
		appLogger.Info("Loaded %d commodities from %s", len(seed.Commodities), cfg.Feed.SeedFile)
	}

	state := market.NewMarketState(seed, cfg.Feed.HistoryLength)
	engine := market.NewUpdateEngine(state, market.NewRandomSource(cfg.Feed.RandomSeed), cfg.Feed.MaxDelta)
	if cfg.Feed.SessionMIC != "" {
		engine.SetGate(utils.NewSessionGate(cfg.Feed.SessionMIC, appLogger.Named("session")))
	}

	srv, err := server.NewBroadcastServer(cfg.MConfig, appLogger, state, engine)
	if err != nil {
		appLogger.Error("Failed to build server: %v", err)
		return err
	}

	// 3. Bind before anything else announces itself
	ln, err := server.Listen(cfg.Addr())
	if err != nil {
		appLogger.Error("Server failed: %v", err)
		return err
	}

	// Everything below stops when the server does, signal or not
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	wg := &sync.WaitGroup{}

	// 4. Snapshot sinks (optional)
	sinks, err := storage.NewSinksFromConfig(serveCtx, cfg.MConfig, appLogger.Named("storage"))
	if err != nil {
		ln.Close()
		appLogger.Error("Failed to init storage: %v", err)
		return err
	}
	if len(sinks) > 0 {
		recorder := storage.NewRecorder(sinks, cfg.Storage.QueueSize, appLogger.Named("recorder"))
		srv.SetRecorder(recorder)

		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(recorderCtx)
		}()
	}

	// 5. gRPC control plane (optional)
	var control *grpc_control.ControlService
	if cfg.GrpcPort > 0 {
		control = grpc_control.NewControlService(cfg.MConfig, appLogger.Named("grpc"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := control.Start(serveCtx); err != nil {
				appLogger.Error("gRPC control failed: %v", err)
			}
		}()
		control.SetServing(true)
	}

	// 6. Serve until interrupted
	err = srv.Serve(serveCtx, ln)

	if control != nil {
		control.SetServing(false)
	}
	cancelServe()
	// Sinks drain after the hub has stopped producing ticks
	stopRecorder()
	wg.Wait()

	if err != nil {
		appLogger.Error("Server failed: %v", err)
		return err
	}
	appLogger.Info("Shutdown complete")
	return nil
}
