package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sahithikokkula/streamsketch/pkg/config"
	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/registry"
	"github.com/sahithikokkula/streamsketch/pkg/sketches"
	"github.com/sahithikokkula/streamsketch/pkg/storage"
)

// demoStreams are registered next to the events table so a daemon started on
// the same database can ingest it right away.
var demoStreams = []registry.Spec{
	{Name: "events.accounts", Kind: sketches.MisraGriesType, Params: registry.Params{K: 20}},
	{Name: "events.accounts.distinct", Kind: sketches.HyperLogLogType},
	{Name: "events.countries.seen", Kind: sketches.BloomFilterType},
	{Name: "events.latency", Kind: sketches.RankSketchType},
	{Name: "events.status", Kind: sketches.CountMinSketchType},
}

func main() {
	var dbPath string
	var rows int
	var seed int64
	var withStreams bool

	root := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic events table for sketchd to ingest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: "info", Encoding: "console"}); err != nil {
				return err
			}
			defer logger.Sync()
			return run(cmd.Context(), dbPath, rows, seed, withStreams)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&dbPath, "db", envOr("SKETCHD_DB_PATH", config.DefaultDBPath), "Path to the sqlite database")
	root.Flags().IntVarP(&rows, "rows", "n", 200000, "Number of events to write")
	root.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	root.Flags().BoolVar(&withStreams, "streams", true, "Register demo streams over the events table")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, dbPath string, rows int, seed int64, withStreams bool) error {
	log := logger.Get()
	db, err := storage.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := seedEvents(ctx, db, rows, rand.New(rand.NewSource(seed))); err != nil {
		return err
	}
	log.Info("events seeded",
		zap.String("db", dbPath),
		zap.String("rows", humanize.Comma(int64(rows))),
		zap.Duration("took", time.Since(start)))

	if !withStreams {
		return nil
	}
	reg := registry.New(storage.Meta{DB: db})
	if _, err := reg.Restore(ctx); err != nil {
		return err
	}
	for _, spec := range demoStreams {
		if _, err := reg.Ensure(ctx, spec); err != nil {
			return err
		}
	}
	log.Info("demo streams registered", zap.Int("streams", len(demoStreams)))
	return nil
}

// seedEvents replaces the events table with rows of synthetic request
// telemetry: a skewed account distribution with a few heavy hitters and a
// heavy-tailed latency.
func seedEvents(ctx context.Context, db *sql.DB, rows int, rng *rand.Rand) error {
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS events`); err != nil {
		return errors.Wrap(err, "drop events")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE events (
        id INTEGER PRIMARY KEY,
        ts TEXT NOT NULL,
        account TEXT NOT NULL,
        country TEXT NOT NULL,
        status INTEGER NOT NULL,
        latency_ms REAL
    )`); err != nil {
		return errors.Wrap(err, "create events")
	}

	countries := []string{"US", "IN", "DE", "FR", "GB", "BR", "CA", "AU", "JP", "MX"}
	statuses := []int{200, 200, 200, 200, 200, 200, 201, 304, 404, 500}
	accounts := rand.NewZipf(rng, 1.2, 1, 49999)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events(ts, account, country, status, latency_ms) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "prepare statement")
	}
	defer stmt.Close()

	log := logger.Get()
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		ts := epoch.Add(time.Duration(rng.Intn(365*24*3600)) * time.Second)
		account := fmt.Sprintf("acct-%05d", accounts.Uint64())
		// latency heavy-tail; about one in fifty requests timed out with no reading
		var latency any = 5 + rng.ExpFloat64()*40
		if rng.Intn(50) == 0 {
			latency = nil
		}
		if _, err := stmt.ExecContext(ctx, ts.Format(time.RFC3339), account, countries[rng.Intn(len(countries))], statuses[rng.Intn(len(statuses))], latency); err != nil {
			return errors.Wrapf(err, "insert event %d", i)
		}
		if i > 0 && i%50000 == 0 {
			log.Info("inserting events", zap.Int("done", i), zap.Int("total", rows))
		}
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
