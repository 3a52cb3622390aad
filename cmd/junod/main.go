// Command junod runs the JunoSixteen mission progression engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thoretheking/Junosixteen-sub000/internal/challenge"
	"github.com/thoretheking/Junosixteen-sub000/internal/config"
	"github.com/thoretheking/Junosixteen-sub000/internal/decision"
	"github.com/thoretheking/Junosixteen-sub000/internal/engine"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
	"github.com/thoretheking/Junosixteen-sub000/internal/mission"
	"github.com/thoretheking/Junosixteen-sub000/internal/progression"
	"github.com/thoretheking/Junosixteen-sub000/internal/risk"
	"github.com/thoretheking/Junosixteen-sub000/internal/server"
	"github.com/thoretheking/Junosixteen-sub000/internal/store"
	"github.com/thoretheking/Junosixteen-sub000/internal/telemetry"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "junod",
	Short: "JunoSixteen mission progression engine",
	Long: `junod decides, after every answer, whether a mission session is still in
progress, has passed, or must be reset. Decisions are derived by a Mangle
(Datalog) rule program over the session's event log; the surrounding risk,
challenge and cooldown mechanics live in the client-visible state machines.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP decision service",
	RunE:  runServe,
}

var evalCmd = &cobra.Command{
	Use:   "eval [request.json]",
	Short: "Evaluate a single decision request from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("junod engine %s\n", engine.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "junod.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, evalCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func shapeFromConfig(cfg config.Config) facts.Shape {
	return facts.Shape{
		QuestionCount:         cfg.Mission.QuestionCount,
		RiskIndexes:           cfg.Mission.RiskIndexes,
		TeamIndex:             cfg.Mission.TeamIndex,
		BasePoints:            cfg.Mission.BasePoints,
		RiskMultiplier:        cfg.Mission.RiskMultiplier,
		TeamMultiplier:        cfg.Mission.TeamMultiplier,
		TeamThresholdPermille: cfg.Mission.TeamThresholdPermille,
	}
}

func buildEngine(cfg config.Config) (*engine.Engine, error) {
	return engine.New(engine.Config{
		QueryTimeout: cfg.Engine.QueryTimeout,
		FactLimit:    cfg.Engine.FactLimit,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Initialize(logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	defer logging.Close()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Engine.RulesOverridePath != "" {
		watcher, err := engine.NewRulesWatcher(cfg.Engine.RulesOverridePath, eng)
		if err != nil {
			return fmt.Errorf("rules watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("rules watcher: %w", err)
		}
		defer watcher.Stop()
	}

	archive, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer archive.Close()

	client := decision.New(decision.NewEngineEvaluator(eng), shapeFromConfig(cfg),
		decision.WithRetry(cfg.Engine.RetryAttempts, cfg.Engine.RetryBackoffBase))

	repo := progression.NewMemoryRepository(cfg.Cache.TTL)
	repo.StartSweeper(ctx, cfg.Cache.SweepInterval)

	sink := telemetry.NewLogSink(256)
	defer sink.Close()

	controller := progression.New(client, repo,
		progression.WithArchiver(archive),
		progression.WithTelemetry(sink))

	missions := mission.NewStore(mission.Rules{
		QuestionCount:   cfg.Mission.QuestionCount,
		LivesStart:      cfg.Mission.LivesStart,
		MaxRegularLives: cfg.Mission.MaxRegularLives,
		MaxTotalLives:   cfg.Mission.MaxTotalLives,
	}, challenge.DefaultRegistry())
	defer missions.Close()

	risks := risk.NewHub(cfg.Risk.MaxAttempts, cfg.Risk.Cooldown, risk.WithRecorder(sink))
	go risks.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(controller, missions, risks, logger).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mission engine listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("engineVersion", engine.Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	var req facts.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	client := decision.New(decision.NewEngineEvaluator(eng), shapeFromConfig(cfg),
		decision.WithRetry(cfg.Engine.RetryAttempts, cfg.Engine.RetryBackoffBase))

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	dec, err := client.Decide(ctx, req)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(dec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
