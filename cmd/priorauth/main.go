package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/formworks/priorauth/internal/config"
	"github.com/formworks/priorauth/internal/form"
	"github.com/formworks/priorauth/internal/pdfgen"
	"github.com/formworks/priorauth/internal/pdfinfo"
	"github.com/formworks/priorauth/internal/pipeline"
	"github.com/formworks/priorauth/internal/schema"
	"github.com/formworks/priorauth/internal/services"
	"github.com/formworks/priorauth/internal/store"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	if cfg.IsDebug() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapCfg.Build()
}

func listDocuments(st *store.Store) error {
	documents, err := st.ListDocuments()
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		fmt.Println("no processed documents")
		return nil
	}
	for _, documentID := range documents {
		status := "unknown"
		if meta, err := st.Metadata(documentID); err == nil {
			if s, ok := meta["status"].(string); ok {
				status = s
			}
		}
		fmt.Printf("%s  %s\n", documentID, status)
	}
	return nil
}

func missingServices(clients pipeline.Collaborators) []string {
	var missing []string
	if clients.OCR == nil {
		missing = append(missing, "ocr")
	}
	if clients.Parser == nil {
		missing = append(missing, "parser")
	}
	if clients.Reasoner == nil {
		missing = append(missing, "reasoner")
	}
	return missing
}

func run() error {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("priorauth %s (built %s)\n", version, buildTime)
			return nil
		}
	}

	listOnly := pflag.Bool("list", false, "List processed documents and exit")

	cfg, err := config.LoadFromFlags()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		return err
	}

	if *listOnly {
		return listDocuments(st)
	}

	if pflag.NArg() < 1 {
		pflag.Usage()
		return errors.New("missing input document path")
	}
	documentPath := pflag.Arg(0)

	caller := services.NewCaller(cfg.RetryAttempts, cfg.RetryInitialBackoff, logger)

	// External engine clients (OCR, structured parser, reasoner) get wired
	// here when deployments configure them. Runs without a reasoner halt at
	// entity extraction; the other two degrade or skip.
	clients := pipeline.Collaborators{}
	if unconfigured := missingServices(clients); len(unconfigured) > 0 {
		logger.Warn("running without external services",
			zap.Strings("unconfigured", unconfigured))
	}

	orchestrator := pipeline.New(pipeline.Deps{
		Store:        st,
		Schemas:      schema.NewLoader(cfg.SchemaDir, logger),
		Engine:       form.NewEngine(clients.Reasoner, caller, logger),
		Analyzer:     pdfinfo.NewAnalyzer(cfg.MaxFileSize, logger),
		Generator:    pdfgen.NewGenerator(cfg.TemplatePath, cfg.OutputDir, logger),
		Caller:       caller,
		Clients:      clients,
		CleanupInput: cfg.CleanupInputs,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := orchestrator.Run(ctx, documentPath, cfg.SchemaName)
	if err != nil {
		var pipeErr *pipeline.Error
		if errors.As(err, &pipeErr) {
			logger.Error("pipeline halted",
				zap.Stringer("stage", pipeErr.Stage),
				zap.String("message", pipeErr.Message))
		}
		return err
	}

	fmt.Printf("document %s processed: %d/%d stages completed (%.0f%% success)\n",
		result.DocumentID,
		result.Summary.CompletedStages,
		result.Summary.TotalStages,
		result.Summary.SuccessRate*100)
	for _, output := range result.Summary.OutputFiles {
		fmt.Printf("  %s: %s (%.1f KB)\n", output.Type, output.Path, output.SizeKB)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "priorauth: %v\n", err)
		os.Exit(1)
	}
}
