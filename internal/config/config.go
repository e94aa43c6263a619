// Package config loads build invocation options from defaults, .env files,
// an optional YAML file, the environment, and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/repoorbit/internal/fetch"
	"github.com/phobologic/repoorbit/internal/graph"
	"github.com/phobologic/repoorbit/internal/model"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "REPOORBIT_"

var validate = validator.New()

// S3Options configures the S3-compatible output target.
type S3Options struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Options are the parameters of one build invocation.
type Options struct {
	Repo          string        `yaml:"repo" validate:"required_without=Local"`
	Local         string        `yaml:"local"`
	SparseDir     string        `yaml:"sparse_dir" validate:"required"`
	Mode          model.Mode    `yaml:"mode" validate:"oneof=directory file"`
	MaxFiles      int           `yaml:"max_files" validate:"min=1,max=100000"`
	Token         string        `yaml:"token"`
	Output        string        `yaml:"output" validate:"required"`
	Format        string        `yaml:"format" validate:"oneof=json toon"`
	CacheDir      string        `yaml:"cache_dir"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	ConfigTimeout time.Duration `yaml:"config_timeout" validate:"gt=0"`
	Workers       int           `yaml:"workers" validate:"min=0"`
	Watch         bool          `yaml:"watch"`
	MetricsOut    string        `yaml:"metrics_out"`
	LogFormat     string        `yaml:"log_format" validate:"oneof=text json"`
	S3            S3Options     `yaml:"s3"`
}

// Defaults returns the options used when nothing overrides them.
func Defaults() Options {
	return Options{
		Mode:          model.ModeDirectory,
		MaxFiles:      graph.DefaultMaxFiles,
		Output:        "-",
		Format:        "json",
		FetchTimeout:  fetch.DefaultFetchTimeout,
		ConfigTimeout: fetch.DefaultConfigTimeout,
		LogFormat:     "text",
		S3:            S3Options{Region: "us-east-1", UseSSL: true},
	}
}

// Load layers defaults, ./.env, the YAML file at path (if non-empty) and
// the process environment. Callers apply flag overrides with Set and then
// call Finalize.
func Load(path string) (Options, error) {
	opts := Defaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return opts, fmt.Errorf("loading .env: %w", err)
	}

	if path != "" {
		if err := opts.LoadFile(path); err != nil {
			return opts, err
		}
	}

	if err := opts.ApplyEnv(os.LookupEnv); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays REPOORBIT_<KEY> variables. GITHUB_TOKEN is used when
// REPOORBIT_TOKEN is unset.
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GITHUB_TOKEN"); ok && v != "" {
		o.Token = v
	}
	for _, key := range Keys {
		v, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok || v == "" {
			continue
		}
		if err := o.Set(key, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(key), err)
		}
	}
	return nil
}

// Keys lists every settable option name.
var Keys = []string{
	"repo", "local", "sparse_dir", "mode", "max_files", "token", "output",
	"format", "cache_dir", "fetch_timeout", "config_timeout", "workers",
	"watch", "metrics_out", "log_format",
	"s3_endpoint", "s3_region", "s3_access_key", "s3_secret_key", "s3_use_ssl",
}

// Set assigns one option from its string form. Flag names map onto keys by
// replacing dashes with underscores.
func (o *Options) Set(key, value string) error {
	key = strings.ReplaceAll(key, "-", "_")
	var err error
	switch key {
	case "repo":
		o.Repo = value
	case "local":
		o.Local = value
	case "sparse_dir":
		o.SparseDir = value
	case "mode":
		o.Mode = model.Mode(strings.ToLower(value))
	case "max_files":
		o.MaxFiles, err = strconv.Atoi(value)
	case "token":
		o.Token = value
	case "output":
		o.Output = value
	case "format":
		o.Format = strings.ToLower(value)
	case "cache_dir":
		o.CacheDir = value
	case "fetch_timeout":
		o.FetchTimeout, err = time.ParseDuration(value)
	case "config_timeout":
		o.ConfigTimeout, err = time.ParseDuration(value)
	case "workers":
		o.Workers, err = strconv.Atoi(value)
	case "watch":
		o.Watch, err = strconv.ParseBool(value)
	case "metrics_out":
		o.MetricsOut = value
	case "log_format":
		o.LogFormat = strings.ToLower(value)
	case "s3_endpoint":
		o.S3.Endpoint = value
	case "s3_region":
		o.S3.Region = value
	case "s3_access_key":
		o.S3.AccessKey = value
	case "s3_secret_key":
		o.S3.SecretKey = value
	case "s3_use_ssl":
		o.S3.UseSSL, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: invalid value %q", key, value)
	}
	return nil
}

// Finalize fills defaults that depend on other options and validates the
// result.
func (o *Options) Finalize() error {
	if o.SparseDir == "" {
		if o.Local != "" {
			o.SparseDir = "."
		} else {
			o.SparseDir = "src"
		}
	}
	if o.Local == "" && o.CacheDir == "" {
		dir, err := fetch.DefaultCacheDir()
		if err != nil {
			return err
		}
		o.CacheDir = dir
	}
	return o.Validate()
}

// Validate checks option values.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return formatValidationError(err)
	}
	if o.Repo != "" && o.Local != "" {
		return errors.New("Repo: cannot be combined with Local")
	}
	if o.Watch && o.Local == "" {
		return errors.New("Watch: requires Local")
	}
	if strings.HasPrefix(o.Output, "s3://") && o.S3.Endpoint == "" {
		return errors.New("S3.Endpoint: required for s3:// output")
	}
	return nil
}

// String renders the options with secrets masked.
func (o Options) String() string {
	return fmt.Sprintf("repo=%s local=%s sparse_dir=%s mode=%s max_files=%d token=%s output=%s format=%s",
		o.Repo, o.Local, o.SparseDir, o.Mode, o.MaxFiles, mask(o.Token), o.Output, o.Format)
}

// LogValue implements slog.LogValuer with secrets masked.
func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("repo", o.Repo),
		slog.String("local", o.Local),
		slog.String("sparse_dir", o.SparseDir),
		slog.String("mode", string(o.Mode)),
		slog.Int("max_files", o.MaxFiles),
		slog.String("token", mask(o.Token)),
		slog.String("output", o.Output),
		slog.String("format", o.Format),
		slog.String("cache_dir", o.CacheDir),
		slog.String("s3_secret_key", mask(o.S3.SecretKey)),
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required", "required_without":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
