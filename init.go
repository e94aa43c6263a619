package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/phobologic/repoorbit/internal/config"
)

const defaultConfigPath = "repoorbit.yaml"

// runInit implements the `repoorbit init` subcommand, which writes a starter
// config file holding the default options.
func runInit(args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("repoorbit init", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var dryRun, force bool
	fset.BoolVar(&dryRun, "dry-run", false, "print the config instead of writing it")
	fset.BoolVar(&force, "force", false, "overwrite an existing config file")

	fset.Usage = func() {
		fmt.Fprintf(stderr, `Usage: repoorbit init [flags] [path]

Write a starter repoorbit config with every option at its default value.
Load it with -config. path defaults to ./%s.

Flags:
`, defaultConfigPath)
		fset.PrintDefaults()
	}

	if err := fset.Parse(args); err != nil {
		return err
	}

	content := generateConfig(config.Defaults())
	if dryRun {
		_, _ = fmt.Fprint(stdout, content)
		return nil
	}

	path := defaultConfigPath
	if fset.NArg() > 0 {
		path = fset.Arg(0)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote config to %s\n", path)
	return nil
}

// generateConfig renders d as a commented YAML config file.
func generateConfig(d config.Options) string {
	return fmt.Sprintf(`# repoorbit configuration. REPOORBIT_<KEY> environment variables and
# command-line flags override these values.

# GitHub repository: owner/repo, an https URL, or git@host:owner/repo.
# Leave empty and set local to build from a directory on disk instead.
repo: ""
local: ""

# Directory to analyse inside the repository. Empty means "src", or "."
# for local builds.
sparse_dir: ""

# View described by meta: directory or file.
mode: %s
max_files: %d

# "-" for stdout, a file path, or s3://bucket/key.
output: %q
# json or toon.
format: %s

# Checkout cache. Empty means $REPOORBIT_CACHE_DIR or the user cache dir.
cache_dir: ""
fetch_timeout: %s
config_timeout: %s

# Parser goroutines. 0 uses GOMAXPROCS.
workers: %d
log_format: %s
metrics_out: ""

# Prefer GITHUB_TOKEN or REPOORBIT_TOKEN to storing a token here.
token: ""

s3:
  endpoint: ""
  region: %s
  use_ssl: %t
`,
		d.Mode, d.MaxFiles, d.Output, d.Format,
		d.FetchTimeout, d.ConfigTimeout, d.Workers, d.LogFormat,
		d.S3.Region, d.S3.UseSSL,
	)
}
