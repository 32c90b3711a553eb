// Package config loads container settings from YAML or JSON documents and
// from DICORE_* environment variables.
//
//	cfg, err := config.Load(ctx, "file:///etc/app/dicore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c := dicore.New(dicore.WithConfig(cfg))
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvMaxDepth           = "DICORE_MAX_DEPTH"
	EnvStrictMode         = "DICORE_STRICT_MODE"
	EnvAutoDefine         = "DICORE_AUTO_DEFINE"
	EnvDevMode            = "DICORE_DEV_MODE"
	EnvPrototypeCacheSize = "DICORE_PROTOTYPE_CACHE_SIZE"
	EnvCompileConcurrency = "DICORE_COMPILE_CONCURRENCY"
	EnvDenyPatterns       = "DICORE_DENY_PATTERNS"
)

// Defaults applied by Init.
const (
	DefaultMaxDepth           = 64
	DefaultPrototypeCacheSize = 1000
)

// Config holds container settings.
type Config struct {
	MaxDepth   int  `yaml:"maxDepth" json:"maxDepth"`
	StrictMode bool `yaml:"strictMode" json:"strictMode"`

	// AutoDefine is enabled when unset.
	AutoDefine *bool `yaml:"autoDefine" json:"autoDefine"`

	DevMode            bool `yaml:"devMode" json:"devMode"`
	PrototypeCacheSize int  `yaml:"prototypeCacheSize" json:"prototypeCacheSize"`
	CompileConcurrency int  `yaml:"compileConcurrency" json:"compileConcurrency"`

	// DenyPatterns are glob patterns of service ids no resolution may reach.
	DenyPatterns []string `yaml:"denyPatterns" json:"denyPatterns"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.Init()
	return c
}

// Init fills unset values with defaults.
func (c *Config) Init() {
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.PrototypeCacheSize == 0 {
		c.PrototypeCacheSize = DefaultPrototypeCacheSize
	}
}

// AutoDefineEnabled reports whether auto-definition is on.
func (c *Config) AutoDefineEnabled() bool {
	return c.AutoDefine == nil || *c.AutoDefine
}

// Validate rejects settings the container cannot run with.
func (c *Config) Validate() error {
	if c.MaxDepth <= 0 {
		return fmt.Errorf("maxDepth must be positive, got %d", c.MaxDepth)
	}
	if c.PrototypeCacheSize <= 0 {
		return fmt.Errorf("prototypeCacheSize must be positive, got %d", c.PrototypeCacheSize)
	}
	if c.CompileConcurrency < 0 {
		return fmt.Errorf("compileConcurrency cannot be negative, got %d", c.CompileConcurrency)
	}
	for _, pattern := range c.DenyPatterns {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("denyPatterns cannot contain an empty pattern")
		}
	}
	return nil
}

// Load downloads the document at URL, which may use any scheme afs supports
// (file, mem, s3, gs, ...). Documents ending in .json are decoded as JSON,
// anything else as YAML.
func Load(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download config %v", URL)
	}

	cfg, err := Decode(data, strings.HasSuffix(URL, ".json"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %v", URL)
	}
	return cfg, nil
}

// Decode parses a YAML (or JSON, when isJSON is set) document, applies the
// defaults and validates the result.
func Decode(data []byte, isJSON bool) (*Config, error) {
	cfg := &Config{}
	if isJSON {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Init()
	return cfg, cfg.Validate()
}

// FromEnv loads the given .env files, then builds a configuration from the
// defaults and the DICORE_* variables. Without files it tries ".env" and
// ignores a missing one.
func FromEnv(files ...string) (*Config, error) {
	if len(files) == 0 {
		// .env is optional
		_ = godotenv.Load(".env")
	} else if err := godotenv.Load(files...); err != nil {
		return nil, errors.Wrapf(err, "failed to load env files %v", files)
	}

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings with the DICORE_* variables that are set.
func (c *Config) ApplyEnv() error {
	if err := envInt(EnvMaxDepth, &c.MaxDepth); err != nil {
		return err
	}
	if err := envInt(EnvPrototypeCacheSize, &c.PrototypeCacheSize); err != nil {
		return err
	}
	if err := envInt(EnvCompileConcurrency, &c.CompileConcurrency); err != nil {
		return err
	}
	if err := envBool(EnvStrictMode, &c.StrictMode); err != nil {
		return err
	}
	if err := envBool(EnvDevMode, &c.DevMode); err != nil {
		return err
	}

	if v, ok := os.LookupEnv(EnvAutoDefine); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvAutoDefine)
		}
		c.AutoDefine = &enabled
	}

	if v, ok := os.LookupEnv(EnvDenyPatterns); ok {
		c.DenyPatterns = nil
		for _, pattern := range strings.Split(v, ",") {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				c.DenyPatterns = append(c.DenyPatterns, pattern)
			}
		}
	}
	return nil
}

func envInt(key string, target *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*target = n
	return nil
}

func envBool(key string, target *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", key)
	}
	*target = b
	return nil
}
