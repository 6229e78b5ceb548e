package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
)

// envFiles are read, in order, from the configuration directory. Variables already set
// in the environment win.
var envFiles = []string{".env", ".env.local"}

// Load reads, normalizes, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	loadEnvFiles(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).UserAction().Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read configuration").WithContext("path", path).Build()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Parse builds a configuration from YAML. Relative paths resolve against the working
// directory until SetBaseDir is called.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse configuration").Build()
	}
	if err := finish(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = finish(cfg)
	return cfg
}

func finish(cfg *Config) error {
	res := NormalizeConfig(cfg)
	for _, w := range res.Warnings {
		slog.Warn("Config normalization", slog.String("detail", w))
	}
	applyDefaults(cfg)
	return ValidateConfig(cfg)
}

func loadEnvFiles(dir string) {
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load env file", logfields.Path(p), logfields.Error(err))
			continue
		}
		slog.Debug("Loaded env file", logfields.Path(p))
	}
}
