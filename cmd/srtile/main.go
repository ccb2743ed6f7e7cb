package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"srtile/pkg/config"
	"srtile/pkg/model"
	"srtile/pkg/predictor"
)

func main() {
	inputDir := flag.String("input", "", "Directory containing the low-resolution images")
	outputDir := flag.String("output", "", "Output directory (default from config: data/output)")
	configPath := flag.String("config", "srtile.yml", "YAML configuration file")
	batchSize := flag.Int("batch", 0, "Number of patches per model call")
	patchSize := flag.Int("patch", 0, "Patch size for tiled images")
	paddingSize := flag.Int("padding", -1, "Context pixels around each patch")
	threshold := flag.Int("threshold", 0, "Longest side processed without tiling")
	scale := flag.Int("scale", 0, "Upscaling factor")
	filter := flag.String("filter", "", "Resampling kernel: "+strings.Join(model.Filters(), ", "))
	padMode := flag.String("pad-mode", "", "Fill outside the image: edge or zero")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save the patches of tiled images")
	computeMetrics := flag.Bool("metrics", false, "Compute consistency metrics for every output")
	verbose := flag.Bool("verbose", true, "Log progress")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Dir = *outputDir
		case "batch":
			cfg.Inference.BatchSize = *batchSize
		case "patch":
			cfg.Inference.PatchSize = *patchSize
		case "padding":
			cfg.Inference.PaddingSize = *paddingSize
		case "threshold":
			cfg.Inference.TilingThreshold = *threshold
		case "scale":
			cfg.Model.Scale = *scale
		case "filter":
			cfg.Model.Filter = *filter
		case "pad-mode":
			cfg.Inference.PadMode = *padMode
		case "save-intermediary":
			cfg.Output.SaveIntermediaryResults = *saveIntermediary
		case "metrics":
			cfg.Output.Metrics = *computeMetrics
		case "verbose":
			cfg.Output.Verbose = *verbose
		}
	})

	logger := newLogger(cfg.Output.Verbose)
	if err := run(cfg, *inputDir, logger); err != nil {
		logger.Error("prediction failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, inputDir string, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	m, err := model.NewInterpolator(cfg.Model.Filter, cfg.Model.Scale)
	if err != nil {
		return err
	}

	pred, err := predictor.NewPredictor(&predictor.Params{
		InputDir:                inputDir,
		OutputDir:               cfg.Output.Dir,
		Policy:                  cfg.Policy(),
		Options:                 opts,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		ComputeMetrics:          cfg.Output.Metrics,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting prediction", "images", len(pred.Images()), "model", model.Basename(m))
	start := time.Now()
	results, err := pred.Process(ctx, m)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("prediction finished",
		"processed", len(results)-failed, "failed", failed,
		"seconds", time.Since(start).Seconds(), "results", pred.RunDir())
	return nil
}

// newLogger returns a text logger on stderr. Without verbose output only
// errors are reported.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
