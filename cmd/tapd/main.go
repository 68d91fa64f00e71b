// Command tapd runs the allocation engine behind a thin HTTP/SSE gateway.
// It is an external collaborator over the core packages, not part of the
// protocol itself (spec.md §1): every import here is one-directional, from
// main into engine/ledger/holds/stream/cutmgr/snapshot, never the reverse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/tapfederation/tap/cutmgr"
	"github.com/tapfederation/tap/engine"
	"github.com/tapfederation/tap/internal/obslog"
	"github.com/tapfederation/tap/ledger"
	"github.com/tapfederation/tap/snapshot"
	"github.com/tapfederation/tap/stream"
	"github.com/tapfederation/tap/sweeper"
	"github.com/tapfederation/tap/tapclock"
	"github.com/tapfederation/tap/tapconfig"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("tapd: load config: %v", err)
	}

	logger, err := obslog.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("tapd: build logger: %v", err)
	}
	defer logger.Sync()

	clock := tapclock.System{}
	store := ledger.NewMemoryStore()
	multiplexer := stream.New(store.Log, clock, cfg.Heartbeat())
	eng := engine.New(store, clock, logger, multiplexer)
	cuts := cutmgr.New(store.Log, clock, cfg.CutRetention())
	proj := snapshot.New(store.Log)

	sweep := sweeper.New(logger, func(ctx context.Context) error {
		_, err := eng.SweepExpired(ctx)
		return err
	})
	if err := sweep.Start(context.Background(), fmt.Sprintf("@every %s", cfg.SweepInterval())); err != nil {
		log.Fatalf("tapd: start sweeper: %v", err)
	}
	defer sweep.Stop()

	g := &gateway{engine: eng, cuts: cuts, proj: proj, mux: multiplexer, logger: logger}
	router := newRouter(g)

	if *configPath != "" {
		stop := watchConfig(*configPath, logger, func(next tapconfig.Config) {
			logger.Info("config reloaded", "logLevel", next.LogLevel, "heartbeatSec", next.HeartbeatSec)
		})
		defer stop()
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("tapd listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.SweepInterval())
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (tapconfig.Config, error) {
	var feeders []tapconfig.Feeder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		feeders = append(feeders, tapconfig.TOMLFeeder{Path: path})
	case ".yaml", ".yml":
		feeders = append(feeders, tapconfig.YAMLFeeder{Path: path})
	}
	feeders = append(feeders, tapconfig.EnvFeeder{})
	return tapconfig.Load(feeders...)
}

// watchConfig reloads the config file whenever it is written or created
// and passes the result to onReload. The running engine, stream
// multiplexer, sweeper and cut manager keep the values they were built
// with; main's onReload only logs the new log level and heartbeat.
func watchConfig(path string, logger *obslog.Logger, onReload func(tapconfig.Config)) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("config watch disabled", "error", err)
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error("config watch disabled", "error", err)
		watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, err := loadConfig(path)
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				onReload(next)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}
}
