// Package config loads run configuration from a YAML file, an optional .env file and
// HOLDOUT_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/holdout/core/model"
	"github.com/YuminosukeSato/holdout/pkg/errors"
	"github.com/YuminosukeSato/holdout/pkg/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOLDOUT_"

// Config is the complete description of one training and evaluation run.
type Config struct {
	Training    Training    `yaml:"training"`
	Model       Model       `yaml:"model"`
	Persistence Persistence `yaml:"persistence"`
	Evaluation  Evaluation  `yaml:"evaluation"`
	Logging     Logging     `yaml:"logging"`
	Monitoring  Monitoring  `yaml:"monitoring"`
	Report      Report      `yaml:"report"`
}

type Training struct {
	Source string `yaml:"source"`
	Label  string `yaml:"label"`
	// Stream feeds incremental models row by row from the file instead of loading it.
	Stream bool `yaml:"stream"`
}

type Model struct {
	Algorithm string                 `yaml:"algorithm"`
	Params    map[string]interface{} `yaml:"params"`
}

type Persistence struct {
	Backend string `yaml:"backend"` // file, bolt or none
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
}

type Evaluation struct {
	Threshold    float64  `yaml:"threshold"`
	Sources      []string `yaml:"sources"`
	Workers      int      `yaml:"workers"`
	CaptureProba bool     `yaml:"capture_proba"`
	Drift        bool     `yaml:"drift"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Monitoring struct {
	Textfile string `yaml:"textfile"`
}

type Report struct {
	ProbaPlot string `yaml:"proba_plot"`
	Bins      int    `yaml:"bins"`
}

// Default returns the configuration used for every key a file does not set.
func Default() *Config {
	return &Config{
		Training: Training{Label: "SEPSIS"},
		Model: Model{
			Algorithm: "adaptive_random_forest",
			Params: map[string]interface{}{
				"max_depth":        5,
				"split_criterion":  "gini",
				"split_confidence": 1e-2,
				"grace_period":     1000,
				"seed":             0,
			},
		},
		Persistence: Persistence{Backend: "file", Path: "model_persist/model.holdout", Name: "model"},
		Evaluation:  Evaluation{Threshold: model.DefaultThreshold, Workers: 1},
		Logging:     Logging{Level: "info", Format: "console"},
		Report:      Report{Bins: 50},
	}
}

// LoadDotEnv loads the given .env files, skipping those that do not exist. Variables
// already present in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// Load reads path (or HOLDOUT_CONFIG when path is empty) over the defaults, applies
// environment overrides and validates the result. Without any file the defaults and
// environment alone are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := cfg.decode(data); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// decode unmarshals YAML strictly: unknown keys are errors.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// model.params replaces the default set as a whole.
	var peek struct {
		Model struct {
			Params map[string]interface{} `yaml:"params"`
		} `yaml:"model"`
	}
	if err := yaml.Unmarshal(data, &peek); err == nil && peek.Model.Params != nil {
		c.Model.Params = nil
	}
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("LABEL", &c.Training.Label)
	str("TRAINING_SOURCE", &c.Training.Source)
	str("ALGORITHM", &c.Model.Algorithm)
	str("ARTIFACT_BACKEND", &c.Persistence.Backend)
	str("ARTIFACT_PATH", &c.Persistence.Path)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("METRICS_TEXTFILE", &c.Monitoring.Textfile)

	if v := os.Getenv(EnvPrefix + "HOLDOUT_SOURCES"); v != "" {
		var sources []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		c.Evaluation.Sources = sources
	}
	if v := os.Getenv(EnvPrefix + "THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"THRESHOLD", "must be a number", v)
		}
		c.Evaluation.Threshold = f
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"WORKERS", "must be an integer", v)
		}
		c.Evaluation.Workers = n
	}
	return nil
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if c.Training.Source == "" {
		return errors.NewValidationError("training.source", "must not be empty", c.Training.Source)
	}
	if c.Training.Label == "" {
		return errors.NewValidationError("training.label", "must not be empty", c.Training.Label)
	}
	if c.Model.Algorithm == "" {
		return errors.NewValidationError("model.algorithm", "must not be empty", c.Model.Algorithm)
	}
	if !model.IsRegistered(c.Model.Algorithm) {
		return errors.NewValidationError("model.algorithm",
			"unknown algorithm, expected one of "+strings.Join(model.Algorithms(), ", "), c.Model.Algorithm)
	}
	if err := model.ValidateThreshold(c.Evaluation.Threshold); err != nil {
		return err
	}
	if len(c.Evaluation.Sources) == 0 {
		return errors.NewValidationError("evaluation.sources", "at least one holdout source is required", c.Evaluation.Sources)
	}
	if c.Evaluation.Workers < 1 {
		return errors.NewValidationError("evaluation.workers", "must be at least 1", c.Evaluation.Workers)
	}

	switch c.Persistence.Backend {
	case "none":
	case "file", "bolt":
		if c.Persistence.Path == "" {
			return errors.NewValidationError("persistence.path", "required for backend "+c.Persistence.Backend, c.Persistence.Path)
		}
		if c.Persistence.Backend == "bolt" && c.Persistence.Name == "" {
			return errors.NewValidationError("persistence.name", "required for backend bolt", c.Persistence.Name)
		}
	default:
		return errors.NewValidationError("persistence.backend", "must be file, bolt or none", c.Persistence.Backend)
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errors.NewValidationError("logging.format", "must be json or console", c.Logging.Format)
	}
	if c.Report.Bins < 1 {
		return errors.NewValidationError("report.bins", "must be at least 1", c.Report.Bins)
	}
	return nil
}
