// Command textclf trains and evaluates a TF-IDF + logistic regression
// newsgroup classifier and writes a JSON report with plots.
//
//	textclf -config run.yaml -out ./out -log-level info -log-pretty
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/YuminosukeSato/textclf/experiment"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

type options struct {
	config    string
	out       string
	logLevel  string
	logPretty bool
	dataset   string
	seed      uint64
	noPlots   bool
}

func parseFlags(args []string) (options, map[string]bool, error) {
	var o options
	fs := flag.NewFlagSet("textclf", flag.ContinueOnError)
	fs.StringVar(&o.config, "config", "", "YAML run configuration")
	fs.StringVar(&o.out, "out", "", "output directory (overrides output.dir)")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&o.logPretty, "log-pretty", false, "human readable console logs")
	fs.StringVar(&o.dataset, "dataset", "", "dataset name or path to a .jsonl/.csv file")
	fs.Uint64Var(&o.seed, "seed", 0, "split seed (overrides split.seed)")
	fs.BoolVar(&o.noPlots, "no-plots", false, "skip the visualisation step")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set, nil
}

// buildConfig applies the flags that were set on top of the file or defaults.
func buildConfig(o options, set map[string]bool) (experiment.Config, error) {
	cfg := experiment.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = experiment.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}
	if set["out"] {
		cfg.Output.Dir = o.out
	}
	if set["dataset"] {
		switch strings.ToLower(filepath.Ext(o.dataset)) {
		case ".jsonl", ".ndjson", ".csv":
			cfg.Dataset.Path = o.dataset
		default:
			cfg.Dataset.Name = o.dataset
			cfg.Dataset.Path = ""
		}
	}
	if set["seed"] {
		cfg.Split.Seed = o.seed
	}
	if o.noPlots {
		cfg.Visualize.Enabled = false
	}
	return cfg, cfg.Validate()
}

func run(args []string) int {
	o, set, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if err := log.SetupLogger(o.logLevel, o.logPretty); err != nil {
		fmt.Fprintln(os.Stderr, "textclf:", err)
		return 2
	}
	logger := log.GetLoggerWithName("textclf")

	cfg, err := buildConfig(o, set)
	if err != nil {
		logger.Error("Invalid configuration", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, cfg, logger, os.Stdout)
}

// execute runs the experiment and prints the summary to w.
func execute(ctx context.Context, cfg experiment.Config, logger log.Logger, w io.Writer) int {
	// 失敗は Run がステップ名付きでログに残す
	rep, err := experiment.Run(ctx, cfg, logger)
	if err != nil {
		return 1
	}
	fmt.Fprintln(w, rep.Classification.String())
	fmt.Fprintf(w, "accuracy: %.4f  report: %s\n", rep.Accuracy, rep.Artifacts["report"])
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
