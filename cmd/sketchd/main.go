package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sahithikokkula/streamsketch/pkg/api"
	"github.com/sahithikokkula/streamsketch/pkg/config"
	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/registry"
	"github.com/sahithikokkula/streamsketch/pkg/storage"
)

var version = "0.1.0"

func main() {
	var configFile, dbPath, logLevel string
	var port int

	root := &cobra.Command{
		Use:   "sketchd",
		Short: "sketchd - streaming approximation sketches over HTTP",
		Long: `sketchd keeps named streams, each backed by a bounded-memory sketch
(counters, membership filters, cardinality, heavy hitters, frequencies and
ranks), and answers approximate queries with error bounds.

Example:
  sketchd --config sketchd.yaml --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.Storage.DBPath = dbPath
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	root.Flags().StringVar(&dbPath, "db", config.DefaultDBPath, "Path to the sqlite database (overrides storage.db_path)")
	root.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "HTTP port (overrides server.port)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sketchd v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "kinds",
		Short: "List the supported sketch kinds",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range registry.Kinds() {
				d, _ := registry.Defaults(k)
				fmt.Printf("  - %-24s %+v\n", k, d)
			}
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("using database", zap.String("path", cfg.Storage.DBPath))
	db, err := storage.Open(ctx, cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// sketch state is never stored, so every stream restarts empty
	if err := storage.ResetObserved(ctx, db); err != nil {
		return err
	}
	reg := registry.New(storage.Meta{DB: db})
	if _, err := reg.Restore(ctx); err != nil {
		return err
	}
	for _, spec := range cfg.Streams {
		if _, err := reg.Ensure(ctx, spec); err != nil {
			return errors.Wrapf(err, "configured stream %s", spec.Name)
		}
	}

	r := mux.NewRouter()
	api.RegisterRoutes(r, reg, db)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("sketchd listening", zap.String("addr", "http://localhost"+srv.Addr), zap.Int("streams", reg.Len()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("server stopped")
	return nil
}
