package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"carprep/internal/config"
	"carprep/internal/dbclient"
	"carprep/internal/etl"
	_ "carprep/internal/etl/sources"
	"carprep/internal/logging"
	"carprep/internal/metrics"
	"carprep/internal/service"
	"carprep/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file")
	watch := flag.Bool("watch", false, "keep running and re-run when source files change")
	history := flag.Int("history", 0, "print the last N recorded runs and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "carprep:", err)
		return 2
	}
	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runs *storage.RunStore
	if cfg.State.DBPath != "" {
		db, err := storage.New(cfg.State.DBPath)
		if err != nil {
			logger.Error("failed to open state database", slog.String("path", cfg.State.DBPath), slog.Any("error", err))
			return 1
		}
		defer db.Close()
		runs = storage.NewRunStore(db)
	}

	if *history > 0 {
		if runs == nil {
			logger.Error("run history requires state.db_path")
			return 2
		}
		logs, err := runs.ListRunLogs(*history)
		if err != nil {
			logger.Error("failed to list runs", slog.Any("error", err))
			return 1
		}
		printHistory(os.Stdout, logs)
		return 0
	}

	engine := &etl.Engine{
		Dest:    &etl.CSVFileWriter{Path: cfg.Pipeline.OutputPath},
		Emitter: &service.LogEmitter{Logger: logger},
		Logger:  logger,
	}
	if cfg.Mirror.Driver != "" {
		conn, err := dbclient.NewConnector(dbclient.Connection{
			Driver:   cfg.Mirror.Driver,
			DSN:      cfg.Mirror.DSN,
			Database: cfg.Mirror.Database,
		})
		if err != nil {
			logger.Error("failed to open mirror", slog.String("driver", cfg.Mirror.Driver), slog.Any("error", err))
			return 1
		}
		defer conn.Close()
		if err := conn.TestConnection(ctx); err != nil {
			logger.Error("mirror unreachable", slog.String("driver", cfg.Mirror.Driver), slog.Any("error", err))
			return 1
		}
		engine.Mirrors = append(engine.Mirrors, &etl.TableWriter{
			Conn:  conn,
			Table: cfg.Mirror.Table,
			Label: cfg.Mirror.Driver,
		})
	}

	opts := service.Options{
		Engine: engine,
		Job: etl.Job{
			SourceDir:      cfg.Pipeline.SourceDir,
			OutputPath:     cfg.Pipeline.OutputPath,
			ReferenceYear:  cfg.Pipeline.ReferenceYear,
			ImputeFallback: etl.ImputeFallback(cfg.Pipeline.ImputeFallback),
			PreviewRows:    cfg.Pipeline.PreviewRows,
		},
		Metrics:         metrics.NewRecorder(),
		MetricsTextfile: cfg.Metrics.Textfile,
		Schedule:        cfg.Watch.Schedule,
		Debounce:        cfg.Watch.Debounce,
		Logger:          logger,
	}
	// A nil *RunStore must not become a non-nil interface.
	if runs != nil {
		opts.Runs = runs
	}
	svc := service.NewPipelineService(opts)

	if *watch {
		if err := svc.Watch(ctx); err != nil {
			logger.Error("watch failed", slog.Any("error", err))
			return 1
		}
		return 0
	}

	if _, err := svc.RunOnce(ctx); err != nil {
		logger.Error("preprocessing failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func printHistory(w io.Writer, logs []etl.RunLog) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tSOURCES\tREAD\tDUPLICATES\tWRITTEN\tERROR")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			l.ID, l.StartedAt.Local().Format(time.DateTime), l.Status,
			l.SourceCount, l.RowsRead, l.DuplicatesRemoved, l.RowsWritten, l.Error)
	}
	tw.Flush()
}
