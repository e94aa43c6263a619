// repoorbit extracts a repository's module import graph for 3D
// visualization and replays recorded hand gestures through the camera
// controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/phobologic/repoorbit/internal/config"
	"github.com/phobologic/repoorbit/internal/fetch"
	"github.com/phobologic/repoorbit/internal/metrics"
	"github.com/phobologic/repoorbit/internal/pipeline"
	"github.com/phobologic/repoorbit/internal/publish"
	"github.com/phobologic/repoorbit/internal/watch"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flagKeys maps flag names that differ from their option key.
var flagKeys = map[string]string{
	"out": "output",
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "init":
			return runInit(args[1:], stdout, stderr)
		case "replay":
			return runReplay(ctx, args[1:], stdout, stderr)
		}
	}

	fs := flag.NewFlagSet("repoorbit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  string
		showVersion bool
	)
	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.String("repo", "", "GitHub repository (owner/repo or URL)")
	fs.String("local", "", "build from a local directory instead of fetching")
	fs.String("sparse-dir", "", `subdirectory to analyse (default "src", or "." with -local)`)
	fs.String("mode", "", "graph view described by meta: directory or file")
	fs.Int("max-files", 0, "maximum number of files in the file view")
	fs.String("token", "", "access token for private repositories (default $GITHUB_TOKEN)")
	fs.String("out", "", `output target: "-", a file path, or s3://bucket/key`)
	fs.String("format", "", "output format: json or toon")
	fs.String("cache-dir", "", "checkout cache directory")
	fs.Duration("fetch-timeout", 0, "timeout for cloning")
	fs.Duration("config-timeout", 0, "timeout for sparse checkout configuration")
	fs.Int("workers", 0, "parser goroutines (default GOMAXPROCS)")
	fs.Bool("watch", false, "rebuild when files under -local change")
	fs.String("metrics-out", "", "write Prometheus metrics to this file after building")
	fs.String("log-format", "", "log format: text or json")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "repoorbit %s\n", version)
		return nil
	}

	opts, err := config.Load(configPath)
	if err != nil {
		return err
	}

	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil || f.Name == "config" || f.Name == "V" || f.Name == "version" {
			return
		}
		key := f.Name
		if k, ok := flagKeys[key]; ok {
			key = k
		}
		setErr = opts.Set(key, f.Value.String())
	})
	if setErr != nil {
		return setErr
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}
	if fs.NArg() == 1 {
		opts.Repo = fs.Arg(0)
	}

	if err := opts.Finalize(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	logger := newLogger(opts.LogFormat, stderr)
	logger.Debug("options", "options", opts)
	return build(ctx, opts, stdout, logger)
}

func newLogger(format string, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("REPOORBIT_DEBUG") != "" {
		hopts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func build(ctx context.Context, opts config.Options, stdout io.Writer, logger *slog.Logger) error {
	reg := metrics.NewRegistry()
	fetcher := &fetch.Fetcher{
		CacheDir:      opts.CacheDir,
		Token:         opts.Token,
		FetchTimeout:  opts.FetchTimeout,
		ConfigTimeout: opts.ConfigTimeout,
		Logger:        logger,
	}
	svc := pipeline.New(fetcher,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(reg),
		pipeline.WithWorkers(opts.Workers),
	)

	sink, err := publish.Open(opts.Output, opts.Format, stdout, opts.S3)
	if err != nil {
		return err
	}

	req := pipeline.Request{
		Repo:      opts.Repo,
		SparseDir: opts.SparseDir,
		Local:     opts.Local,
		Mode:      opts.Mode,
		MaxFiles:  opts.MaxFiles,
	}

	publishOnce := func(ctx context.Context) error {
		doc, err := svc.Build(ctx, req)
		if err != nil {
			return err
		}
		data, err := publish.Encode(doc, opts.Format)
		if err != nil {
			return err
		}
		if err := sink.Write(ctx, data); err != nil {
			return err
		}
		logger.Info("graph published",
			"target", sink.String(),
			"mode", doc.Meta.Mode,
			"nodes", doc.Meta.NodeCount,
			"links", doc.Meta.LinkCount,
		)
		return nil
	}

	err = publishOnce(ctx)
	if err == nil && opts.Watch {
		err = watchAndRebuild(ctx, filepath.Join(opts.Local, opts.SparseDir), logger, func(ctx context.Context) {
			svc.Invalidate(req)
			if err := publishOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rebuild failed", "error", err)
			}
		})
	}

	if opts.MetricsOut != "" {
		if merr := writeMetrics(opts.MetricsOut, reg); merr != nil {
			logger.Warn("cannot write metrics", "path", opts.MetricsOut, "error", merr)
		}
	}
	return err
}

func watchAndRebuild(ctx context.Context, root string, logger *slog.Logger, rebuild func(context.Context)) error {
	w, err := watch.New(root, watch.DefaultDebounce, logger)
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "root", root)
	return w.Run(ctx, rebuild)
}

func writeMetrics(path string, reg *metrics.Registry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := reg.WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-config": true, "--config": true,
	"-repo": true, "--repo": true,
	"-local": true, "--local": true,
	"-sparse-dir": true, "--sparse-dir": true,
	"-mode": true, "--mode": true,
	"-max-files": true, "--max-files": true,
	"-token": true, "--token": true,
	"-out": true, "--out": true,
	"-format": true, "--format": true,
	"-cache-dir": true, "--cache-dir": true,
	"-fetch-timeout": true, "--fetch-timeout": true,
	"-config-timeout": true, "--config-timeout": true,
	"-workers": true, "--workers": true,
	"-metrics-out": true, "--metrics-out": true,
	"-log-format": true, "--log-format": true,
	"-in": true, "--in": true,
	"-tail": true, "--tail": true,
	"-interval": true, "--interval": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
