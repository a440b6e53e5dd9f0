package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mangrove-indexer/internal/config"
	"mangrove-indexer/internal/indexer"
	"mangrove-indexer/internal/observability"
	"mangrove-indexer/internal/storage"
	chstore "mangrove-indexer/internal/storage/clickhouse"
	"mangrove-indexer/internal/storage/memory"
	"mangrove-indexer/internal/storage/migrations"
	pgstore "mangrove-indexer/internal/storage/postgres"
	"mangrove-indexer/internal/stream"
	"mangrove-indexer/internal/stream/stub"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "indexer.yaml", "Path to the YAML stream configuration")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the apply journal (empty to disable)")
	streamEndpoint := flag.String("stream-endpoint", "", "WebSocket endpoint of the stream server")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", false, "Apply database migrations before starting")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[indexer] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg, *postgresDSN, *clickhouseDSN, *streamEndpoint, *useMemory, *migrate)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, postgresDSN, clickhouseDSN, streamEndpoint string, useMemory, migrate bool) error {
	// Require --postgres-dsn unless --use-memory is explicitly set
	if !useMemory && postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	var db storage.DB = memory.NewDB()
	if !useMemory {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Println("Postgres migrations applied")
		}
		db = pgstore.NewDB(pool)
	}

	var journal storage.Journal
	if clickhouseDSN != "" {
		var conn *chstore.Conn
		var err error
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, clickhouseDSN)
		}
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		journal = chstore.NewJournal(conn)
	}

	var source stream.Source
	switch {
	case streamEndpoint != "":
		ws := stream.NewWSSource(streamEndpoint, nil)
		defer ws.Close()
		source = ws
	case useMemory:
		logger.Println("No --stream-endpoint given, consuming an empty in-memory source")
		source = stub.NewSource()
	default:
		return fmt.Errorf("--stream-endpoint is required")
	}

	runner, err := indexer.NewRunner(indexer.Options{
		Config:  cfg,
		DB:      db,
		Source:  source,
		Journal: journal,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	for _, s := range cfg.Streams {
		logger.Printf("Stream %s: kind=%s chain=%d batch=%d", s.Name, s.Kind, s.ChainID, s.BatchSize)
	}
	return runner.Run(ctx)
}
