// Package config loads conform's YAML configuration with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/runner"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// state is the process-wide config. Load fills k once; Get parses it once.
var state struct {
	sync.Mutex
	k      *koanf.Koanf
	loaded bool
	file   string
	cfg    *Config
	err    error
}

func init() { state.k = koanf.New(".") }

type Config struct {
	Target   TargetConfig    `koanf:"target"`
	Spec     SpecConfig      `koanf:"spec"`
	Run      RunConfig       `koanf:"run"`
	Results  ResultsConfig   `koanf:"results"`
	Fixtures runner.Fixtures `koanf:"fixtures"`
}

type TargetConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	APIVersion     string `koanf:"api_version"`
	AcceptLanguage string `koanf:"accept_language"`
	Timeout        string `koanf:"timeout"`
	// Port is checked before a managed service is started. Zero means the
	// port of base_url.
	Port      int             `koanf:"port"`
	Start     CommandConfig   `koanf:"start"`
	Stop      CommandConfig   `koanf:"stop"`
	Readiness ReadinessConfig `koanf:"readiness_check"`
}

type CommandConfig struct {
	Command string `koanf:"command"`
}

type ReadinessConfig struct {
	Command  string `koanf:"command"`
	Timeout  string `koanf:"timeout"`
	Interval string `koanf:"interval"`
}

type SpecConfig struct {
	// Path to an OpenAPI document. Empty uses the bundled description.
	Path string `koanf:"path"`
}

type RunConfig struct {
	Concurrency int    `koanf:"concurrency"`
	Timeout     string `koanf:"timeout"`
	Filter      string `koanf:"filter"`
	FailFast    bool   `koanf:"fail_fast"`
}

type ResultsConfig struct {
	Dir    string `koanf:"dir"`
	Format string `koanf:"format"`
}

var envOverrides = map[string]string{
	"CONFORM_BASE_URL":    "target.base_url",
	"CONFORM_API_KEY":     "target.api_key",
	"CONFORM_API_VERSION": "target.api_version",
	"CONFORM_SPEC":        "spec.path",
	"CONFORM_CONCURRENCY": "run.concurrency",
	"CONFORM_RESULTS_DIR": "results.dir",
}

// Load reads configFile, or the nearest config file when it is empty, and
// applies CONFORM_* environment overrides. Only the first call does work
// until Invalidate is called.
func Load(configFile string) error {
	state.Lock()
	defer state.Unlock()
	if state.loaded {
		return nil
	}

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile == "" {
		log.Debug("No config file found, using defaults and environment variables")
	} else {
		if err := state.k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return fmt.Errorf("error loading config file %s: %w", configFile, err)
		}
		state.file = configFile
		log.Debug("Loaded config", "file", configFile)
	}

	for env, key := range envOverrides {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if err := state.k.Set(key, v); err != nil {
			return fmt.Errorf("error setting %s from %s: %w", key, env, err)
		}
	}
	state.loaded = true
	return nil
}

// Get returns the parsed and validated config, loading it first if needed.
// The result, error included, is cached.
func Get() (*Config, error) {
	if err := Load(""); err != nil {
		return nil, err
	}
	state.Lock()
	defer state.Unlock()
	if state.cfg == nil && state.err == nil {
		state.cfg, state.err = parse(state.k, state.file)
	}
	return state.cfg, state.err
}

// File returns the path of the loaded config file, or "" when none was found.
func File() string {
	state.Lock()
	defer state.Unlock()
	return state.file
}

// Invalidate drops the loaded config so the next Load starts over.
func Invalidate() {
	state.Lock()
	defer state.Unlock()
	state.k = koanf.New(".")
	state.loaded = false
	state.file = ""
	state.cfg, state.err = nil, nil
}

func parse(k *koanf.Koanf, from string) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDefaults()

	cfg.Results.Dir = resolvePath(from, cfg.Results.Dir)
	cfg.Spec.Path = resolvePath(from, cfg.Spec.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	setDefault(&cfg.Target.Timeout, "30s")
	setDefault(&cfg.Run.Timeout, "30s")
	setDefault(&cfg.Results.Dir, filepath.Join(utils.ConformDirName, utils.ResultsSubDir))
	setDefault(&cfg.Results.Format, "json")
	if cfg.Run.Concurrency == 0 {
		cfg.Run.Concurrency = 4
	}
	cfg.Fixtures = cfg.Fixtures.WithDefaults()
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// resolvePath makes p relative to the project root of configFile: the
// directory holding .conform/, or the config file's own directory.
func resolvePath(configFile, p string) string {
	if p == "" || filepath.IsAbs(p) || configFile == "" {
		return p
	}
	root := filepath.Dir(configFile)
	if filepath.Base(root) == utils.ConformDirName {
		root = filepath.Dir(root)
	}
	return filepath.Join(root, p)
}

func validDuration(errs []error, key, value string) []error {
	if value == "" {
		return errs
	}
	if d, err := time.ParseDuration(value); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, value))
	}
	return errs
}

func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Target.BaseURL != "" {
		u, err := url.Parse(cfg.Target.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("target.base_url must be an absolute http(s) URL, got %q", cfg.Target.BaseURL))
		}
	}
	if cfg.Target.Port < 0 || cfg.Target.Port > 65535 {
		errs = append(errs, fmt.Errorf("target.port must be between 1-65535, got %d", cfg.Target.Port))
	}

	errs = validDuration(errs, "target.timeout", cfg.Target.Timeout)
	errs = validDuration(errs, "target.readiness_check.timeout", cfg.Target.Readiness.Timeout)
	errs = validDuration(errs, "target.readiness_check.interval", cfg.Target.Readiness.Interval)
	errs = validDuration(errs, "run.timeout", cfg.Run.Timeout)

	if cfg.Run.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("run.concurrency must be at least 1, got %d", cfg.Run.Concurrency))
	}

	if cfg.Results.Format != "json" && cfg.Results.Format != "yaml" {
		errs = append(errs, fmt.Errorf("results.format must be 'json' or 'yaml', got %s", cfg.Results.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Duration parses a duration that Validate already accepted, falling back
// to def for empty values.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// configCandidates are checked in each directory from the working
// directory up to the filesystem root.
var configCandidates = []string{
	filepath.Join(utils.ConformDirName, "config.yaml"),
	filepath.Join(utils.ConformDirName, "config.yml"),
	"conform.yaml",
	"conform.yml",
}

// findConfigFile returns the closest config file, falling back to
// ~/.conform/config.yaml.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	for {
		for _, name := range configCandidates {
			if p := filepath.Join(dir, name); utils.FileExists(p) {
				return p
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir || parent == "." {
			break
		}
		dir = parent
	}

	if home, err := os.UserHomeDir(); err == nil {
		if p := filepath.Join(home, utils.ConformDirName, utils.ConfigFileName); utils.FileExists(p) {
			return p
		}
	}
	return ""
}
