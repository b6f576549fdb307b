package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/metrics"
	"github.com/becomeliminal/recall/rpc"
	"github.com/becomeliminal/recall/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat over HTTP, WebSocket and gRPC",
		Long: "Start the HTTP server (POST /chat, GET /ws, /health, /metrics) and, when " +
			"server.grpc_listen is set, the gRPC Chat and health services.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("listen", "", "override HTTP listen address (host:port)")
	cmd.Flags().String("grpc-listen", "", "serve gRPC on this address (host:port)")
	_ = v.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("server.grpc_listen", cmd.Flags().Lookup("grpc-listen"))

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("recall")
	eng, cleanup, err := startEngine(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, eng, m)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.Start(ctx) }()

	if cfg.Server.GRPCListen != "" {
		ln, err := net.Listen("tcp", cfg.Server.GRPCListen)
		if err != nil {
			stop()
			<-errCh
			return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCListen, err)
		}
		running++
		go func() { errCh <- rpc.New(eng).Serve(ctx, ln) }()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "recall listening on %s (ready=%t)\n", cfg.Server.Listen, eng.Ready())

	// The first front end to stop takes the others down with it.
	var firstErr error
	for range running {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
		stop()
	}
	return firstErr
}

// startEngine wires the memory pipeline. Configuration errors abort; any
// other failure yields an engine that reports unhealthy and rejects turns.
func startEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*engine.Engine, func(), error) {
	var hits memory.HitRecorder
	if m != nil {
		hits = m
	}
	st, err := buildStack(ctx, cfg, hits)
	if err != nil {
		if core.IsConfiguration(err) {
			return nil, nil, err
		}
		log.Printf("[SERVE] Memory pipeline failed to start, serving degraded: %v", err)
		return engine.New(nil, engine.WithMetrics(m)), func() {}, nil
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Printf("[SERVE] Closing memory pipeline: %v", err)
		}
	}
	return engine.New(st.pipeline, engine.WithMetrics(m)), cleanup, nil
}
