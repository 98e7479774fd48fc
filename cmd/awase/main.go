// Package main is the Awase CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/awase/internal/align"
	"github.com/hyperjump/awase/internal/cache"
	"github.com/hyperjump/awase/internal/cli"
	"github.com/hyperjump/awase/internal/combiner"
	"github.com/hyperjump/awase/internal/config"
	"github.com/hyperjump/awase/internal/dataset"
	"github.com/hyperjump/awase/internal/decode"
	"github.com/hyperjump/awase/internal/feature"
	"github.com/hyperjump/awase/internal/m2"
	"github.com/hyperjump/awase/internal/models"
	"github.com/hyperjump/awase/internal/pipeline"
	"github.com/hyperjump/awase/internal/server"
	"github.com/hyperjump/awase/internal/train"
	"github.com/hyperjump/awase/internal/vocab"
	"github.com/hyperjump/awase/internal/watcher"
	"github.com/hyperjump/awase/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/awase/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "train":
		runTrain()
	case "combine":
		runCombine()
	case "serve":
		runServe()
	case "version", "--version", "-v":
		fmt.Printf("awase version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (per-epoch loss, cache activity)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	d, err := loadDataset(cfg, true)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}
	logger.Info("dataset loaded",
		zap.Int("sentences", d.Len()),
		zap.Strings("systems", d.Systems))

	// A builder-less pipeline handles the alignment that precedes the
	// vocabulary, since the feature layout depends on the observed types.
	p0 := pipeline.New(components.Aligner, components.Cache, nil, nil, nil,
		pipelineOptions(cfg, logger, debugMode)...)
	edits, failed, err := p0.AlignSystems(ctx, d)
	if err != nil {
		logger.Fatal("Alignment failed", zap.Error(err))
	}
	if len(failed) > 0 {
		logger.Fatal("Training requires every system aligned", zap.Strings("failed", failed))
	}
	gold, err := components.Cache.GetOrCompute(ctx, "__reference__", d.Source, d.Target, components.Aligner)
	if err != nil {
		logger.Fatal("Reference alignment failed", zap.Error(err))
	}
	types := pipeline.CollectSystemTypes(append(edits, entryEdits(gold)))

	v := vocab.Build(d.Systems, types)
	if err := vocab.Save(v, cfg.Model.VocabPath, cfg.Model.TypesPath); err != nil {
		logger.Fatal("Failed to save vocabulary", zap.Error(err))
	}
	logger.Info("vocabulary built",
		zap.Int("systems", len(v.Systems)),
		zap.Int("types", len(v.Types)),
		zap.Int("feature_dim", v.FeatureDim()))

	p := pipeline.New(components.Aligner, components.Cache, feature.NewBuilder(v), nil, nil,
		pipelineOptions(cfg, logger, debugMode)...)
	examples, _, err := p.BuildTrainingExamples(ctx, d)
	if err != nil {
		logger.Fatal("Failed to build training examples", zap.Error(err))
	}

	trainOpts := []train.Option{}
	if debugMode {
		trainOpts = append(trainOpts, train.WithLogger(logger))
	}
	trainer := train.New(&cfg.Train, trainOpts...)
	model, bestEpoch, err := trainer.FitSelect(v.FeatureDim(), examples)
	if err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}
	metrics := train.Evaluate(model, examples)
	logger.Info("training finished",
		zap.Int("best_epoch", bestEpoch),
		zap.Int("examples", len(examples)),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("f0.5", metrics.FHalf))

	ck := combiner.NewCheckpoint(model, v, p.RunID(), bestEpoch)
	if err := combiner.SaveCheckpoint(cfg.Model.CheckpointPath, ck); err != nil {
		logger.Fatal("Failed to save checkpoint", zap.Error(err))
	}
	fmt.Printf("Model trained: %s (best epoch %d, F0.5 %.4f)\n",
		cfg.Model.CheckpointPath, bestEpoch, metrics.FHalf)
}

func runCombine() {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputPath := fs.String("output", "", "output file path (overrides config)")
	explain := fs.Bool("explain", false, "print per-sentence selections to stdout")
	outputFormat := fs.String("format", "text", "explanation format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath))

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	d, err := loadDataset(cfg, false)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}
	v, model, err := loadTrainedModel(cfg, d.Systems)
	if err != nil {
		logger.Fatal("Failed to load model", zap.Error(err))
	}

	p := pipeline.New(components.Aligner, components.Cache, feature.NewBuilder(v), model,
		decode.NewSelector(cfg.Model.Threshold), pipelineOptions(cfg, logger, debugMode)...)
	selections, err := p.Combine(context.Background(), d)
	if err != nil {
		logger.Fatal("Combination failed", zap.Error(err))
	}

	out := cfg.Combine.OutputPath
	if *outputPath != "" {
		out = *outputPath
	}
	if err := pipeline.WriteOutput(out, selections); err != nil {
		logger.Fatal("Failed to write output", zap.Error(err))
	}
	if *explain {
		if format == cli.OutputText {
			cli.PrintSelections(selections, v)
		} else if err := cli.WriteSelections(os.Stdout, selections, v, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("Combined %d sentences: %s\n", len(selections), out)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (cache activity, watch events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	systems, err := resolveSystems(cfg)
	if err != nil {
		logger.Fatal("Failed to resolve systems", zap.Error(err))
	}
	v, model, err := loadTrainedModel(cfg, systems)
	if err != nil {
		logger.Fatal("Failed to load model", zap.Error(err))
	}
	p := pipeline.New(components.Aligner, components.Cache, feature.NewBuilder(v), model,
		decode.NewSelector(cfg.Model.Threshold), pipelineOptions(cfg, logger, debugMode)...)

	// Cached alignments go stale when a system output file is rewritten.
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	editCache := components.Cache
	watchSvc := watcher.New(
		cfg.Data.Dir,
		[]string{cfg.Data.SourceName, cfg.Data.TargetName},
		func(system string) {
			if err := editCache.Invalidate(context.Background(), system, nil, nil); err != nil {
				logger.Warn("cache invalidation failed", zap.String("system", system), zap.Error(err))
			} else {
				logger.Info("cached alignment invalidated", zap.String("system", system))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("Watcher disabled", zap.Error(err))
	} else {
		defer watchSvc.Stop()
	}

	srv := server.NewServer(p, v, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// Components holds initialized services.
type Components struct {
	Cache   *cache.Cache
	Aligner align.Aligner
}

func (c *Components) Close() {
	if c.Aligner != nil {
		_ = c.Aligner.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize edit cache: %w", err)
	}

	cacheOpts := []cache.Option{}
	if debug && logger != nil {
		cacheOpts = append(cacheOpts, cache.WithLogger(logger))
	}

	return &Components{
		Cache:   cache.New(store, cacheOpts...),
		Aligner: newAligner(cfg),
	}, nil
}

func newStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "sidecar":
		return cache.NewSidecarStore(cfg.Cache.Dir)
	case "sqlite":
		return cache.NewSQLiteStore(cfg.Cache.DatabasePath)
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q; use sidecar, sqlite, or memory", cfg.Cache.Backend)
	}
}

func newAligner(cfg *config.Config) align.Aligner {
	if cfg.Align.Tool == "diff" {
		return align.NewDiffAligner()
	}
	opts := []align.ErrantOption{
		align.WithCommand(cfg.Align.Command),
		align.WithTimeout(time.Duration(cfg.Align.TimeoutSeconds) * time.Second),
	}
	if cfg.Align.RatePerSecond > 0 {
		opts = append(opts, align.WithRateLimit(cfg.Align.RatePerSecond))
	}
	return align.NewErrantAligner(opts...)
}

func pipelineOptions(cfg *config.Config, logger *zap.Logger, debug bool) []pipeline.Option {
	opts := []pipeline.Option{pipeline.WithWorkers(cfg.Combine.Workers)}
	if cfg.Align.FallbackSystem != "" {
		opts = append(opts, pipeline.WithFallbackSystem(cfg.Align.FallbackSystem))
	}
	if logger != nil {
		opts = append(opts, pipeline.WithLogger(logger))
	}
	return opts
}

func resolveSystems(cfg *config.Config) ([]string, error) {
	if len(cfg.Data.Systems) > 0 {
		return cfg.Data.Systems, nil
	}
	return dataset.ListSystems(cfg.Data.Dir, cfg.Data.SourceName, cfg.Data.TargetName)
}

func loadDataset(cfg *config.Config, withTarget bool) (*dataset.Dataset, error) {
	systems, err := resolveSystems(cfg)
	if err != nil {
		return nil, err
	}
	return dataset.Load(cfg.Data.Dir, cfg.Data.SourceName, cfg.Data.TargetName, systems, withTarget)
}

// loadTrainedModel loads the persisted vocabulary and checkpoint and checks
// both against the current system manifest. Any mismatch is fatal for the
// caller: scoring with misaligned features silently corrupts output.
func loadTrainedModel(cfg *config.Config, systems []string) (*vocab.Vocabulary, *combiner.Model, error) {
	v, err := vocab.Load(cfg.Model.VocabPath, cfg.Model.TypesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	if err := v.Validate(systems); err != nil {
		return nil, nil, err
	}
	ck, err := combiner.LoadCheckpoint(cfg.Model.CheckpointPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if err := ck.Validate(v); err != nil {
		return nil, nil, err
	}
	return v, ck.Model(), nil
}

func entryEdits(entries []m2.Entry) [][]models.Edit {
	out := make([][]models.Edit, len(entries))
	for i, e := range entries {
		out[i] = e.Edits
	}
	return out
}

func printUsage() {
	fmt.Println(`awase - System combination for grammatical error correction

Usage:
  awase train [flags]     Train the combiner model from system outputs and a reference
  awase combine [flags]   Combine system outputs into one corrected file
  awase serve [flags]     Start the HTTP correction API
  awase version           Show version
  awase help              Show this help

Train Flags:
  --config string    Config file path (default: /usr/local/etc/awase/config.yaml)
  --debug            Enable debug logging (per-epoch loss, cache activity)

Combine Flags:
  --config string    Config file path
  --debug            Enable debug logging
  --output string    Output file path (overrides config)
  --explain          Print per-sentence selections to stdout
  --format string    Explanation format: text or json (default: text)

Serve Flags:
  --config string    Config file path
  --debug            Enable debug logging (cache activity, watch events)

Examples:
  awase train
  awase combine --output corrected.txt
  awase combine --explain --format json
  awase serve --debug`)
}
