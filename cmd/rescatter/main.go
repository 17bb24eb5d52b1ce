package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/rescatter/internal/analysis"
	"github.com/rewired-gh/rescatter/internal/config"
	"github.com/rewired-gh/rescatter/internal/logger"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/report"
	"github.com/rewired-gh/rescatter/internal/storage"
	"github.com/rewired-gh/rescatter/internal/telegram"
)

var (
	configPath   = flag.String("config", "configs/config.yaml", "Path to configuration file")
	analysisName = flag.String("analysis", models.AnalysisDetection, "Analysis to run: detection, netgain, ratio, multiplicity or temporal")
	channelName  = flag.String("channel", "", "Ratio channel to run (default: every configured channel)")
	manifestPath = flag.String("manifest", "", "Override input.manifest")
	listRuns     = flag.Int("list-runs", 0, "List the N most recent stored runs of -analysis and exit (needs output.db_path)")
	exportRun    = flag.String("export-run", "", "Rewrite the output files of a stored run and exit (needs output.db_path)")
	deleteRun    = flag.String("delete-run", "", "Delete a stored run and exit (needs output.db_path)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *manifestPath != "" {
		cfg.Input.Manifest = *manifestPath
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	var store *storage.Storage
	if cfg.Output.DBPath != "" {
		store, err = storage.New(cfg.Output.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	if *listRuns > 0 || *exportRun != "" || *deleteRun != "" {
		if store == nil {
			logger.Fatal("Stored runs need output.db_path to be set")
		}
		if err := manageRuns(context.Background(), store, report.NewSink(cfg.Output.Dir, 0, 0), cfg.Output.SummaryJSON); err != nil {
			logger.Error("%v", err)
			_ = store.Close()
			os.Exit(1)
		}
		return
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	analyzers, err := cfg.Analyzers(*analysisName, *channelName)
	if err != nil {
		logger.Fatal("Failed to set up analysis: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := analysis.NewRunner(cfg.Input.Workers, cfg.Input.StrictManifest)
	sink := report.NewSink(cfg.Output.Dir, 0, 0)

	exitCode := 0
	for _, a := range analyzers {
		rep, err := runner.Run(ctx, cfg.Input.Manifest, a)
		if err != nil {
			logger.Error("Analysis %s failed: %v", a.Name(), err)
			exitCode = 1
			break
		}
		if err := publish(ctx, rep, sink, store, telegramClient, cfg.Output.SummaryJSON); err != nil {
			logger.Error("Failed to publish %s results: %v", a.Name(), err)
			exitCode = 1
		}
		if rep.Undefined() {
			logger.Error("%s result is undefined: no samples were collected", runLabel(rep.Summary))
			exitCode = 1
		}
	}

	if exitCode != 0 {
		stop()
		os.Exit(exitCode)
	}
}

// publish writes the report files and then, when configured, records the
// run in the database and sends a notification. Only a failure to write
// the result files is returned; the other sinks log and continue.
func publish(ctx context.Context, rep *analysis.Report, sink *report.Sink, store *storage.Storage, tg *telegram.Client, withJSON bool) error {
	written, err := sink.WriteRun(rep.Summary, withJSON)
	if err != nil {
		return err
	}
	for _, path := range written {
		logger.Info("Wrote %s", path)
	}

	if store != nil {
		if err := store.SaveRun(ctx, rep.Summary); err != nil {
			logger.Warn("Failed to record run %s: %v", rep.Summary.ID, err)
		} else {
			logger.Debug("Recorded run %s", rep.Summary.ID)
		}
	}

	if tg != nil {
		if err := tg.Send(rep.Summary); err != nil {
			logger.Warn("Failed to send Telegram notification: %v", err)
		}
	}
	return nil
}

// manageRuns handles the stored-run flags.
func manageRuns(ctx context.Context, store *storage.Storage, sink *report.Sink, withJSON bool) error {
	switch {
	case *deleteRun != "":
		if err := store.DeleteRun(ctx, *deleteRun); err != nil {
			return err
		}
		logger.Info("Deleted run %s", *deleteRun)
	case *exportRun != "":
		run, err := store.GetRun(ctx, *exportRun)
		if err != nil {
			return err
		}
		written, err := sink.WriteRun(*run, withJSON)
		if err != nil {
			return fmt.Errorf("failed to export run %s: %w", run.ID, err)
		}
		for _, path := range written {
			logger.Info("Wrote %s", path)
		}
	default:
		name := *analysisName
		if !isFlagSet("analysis") {
			name = ""
		}
		runs, err := store.ListRuns(ctx, name, *listRuns)
		if err != nil {
			return err
		}
		return report.WriteRunList(os.Stdout, runs, time.Now())
	}
	return nil
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runLabel(s models.RunSummary) string {
	if s.Channel != "" {
		return s.Analysis + "/" + s.Channel
	}
	return s.Analysis
}
