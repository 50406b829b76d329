package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/resonance-logs/meterd/internal/api"
	"github.com/resonance-logs/meterd/internal/capture"
	"github.com/resonance-logs/meterd/internal/dbtask"
	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/pipeline"
	"github.com/resonance-logs/meterd/internal/refdata"
	"github.com/resonance-logs/meterd/internal/snapshot"
	"github.com/resonance-logs/meterd/internal/storage"
)

// dbTaskQueueCapacity is the DB writer's task channel capacity (§5).
const dbTaskQueueCapacity = 10000

var captureIface string

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture and record combat telemetry without the command surface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd.Context(), false)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture combat telemetry and serve the HTTP/WebSocket command surface",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd.Context(), true)
	},
}

func init() {
	for _, c := range []*cobra.Command{captureCmd, serveCmd} {
		c.Flags().StringVar(&captureIface, "iface", "", "capture device name (defaults to the config file's device, then auto-detection)")
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if silent {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// runEngine wires C1-C10 together and runs them under one errgroup until
// ctx is cancelled by an interrupt signal: the capture pipeline, the DB
// writer, the live snapshot feed, and (when withServer) the HTTP/WebSocket
// command surface.
func runEngine(ctx context.Context, withServer bool) error {
	log := newLogger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath, err := capture.ConfigPath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := capture.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if captureIface != "" {
		cfg.Device = captureIface
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	refdataDir := filepath.Join(filepath.Dir(cfgPath), "meter-data")
	tables, err := refdata.Load(refdataDir, log)
	if err != nil {
		return fmt.Errorf("load reference tables: %w", err)
	}
	defer tables.Close()

	src, err := capture.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer src.Close()

	sink := dbtask.NewChanSink(dbTaskQueueCapacity)
	eng := encounter.New(encounter.DefaultAttemptConfig(), tables, sink, log)

	feed := snapshot.NewFeed(eng, tables, log)
	feed.SetUpdateRate(time.Duration(cfg.EventUpdateRateMs) * time.Millisecond)
	eng.SetObserver(feed)

	writer := storage.NewWriter(db, sink, log)
	pipe := pipeline.New(layers.LayerTypeEthernet, eng, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { writer.Run(gctx); return nil })
	g.Go(func() error { feed.Run(gctx); return nil })
	g.Go(func() error { return pipe.Run(gctx, src) })

	if withServer {
		srv := api.NewServer(cfg.ListenAddr, api.RouterConfig{
			Engine: eng, Feed: feed, DB: db, Tables: tables, Log: log,
		})
		g.Go(func() error { return srv.Start(gctx) })
	}

	log.Info("meterd running", zap.Bool("command_surface", withServer), zap.String("db", dbPath))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
