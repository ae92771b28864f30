// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for foreman components.
//
// Configuration comes from a single YAML file addressed by the
// FOREMAN_CONFIG environment variable or a --config flag. There is no
// automatic discovery and environment variables do not override file
// values; the only expansion performed is ${VAR} substitution in path
// fields for portability. This keeps configuration deterministic and
// auditable.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when the environment
// matches.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for foreman.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Listen is the TCP address the dispatch HTTP API binds
	// (e.g., ":8080").
	Listen string `yaml:"listen"`

	// RunDir is the runtime directory for the admin socket. Access to
	// the socket is gated by this directory's permissions.
	RunDir string `yaml:"run_dir"`

	// Redis configures the shared task/agent-state store.
	Redis RedisConfig `yaml:"redis"`

	// Issuer configures verification-key fetching.
	Issuer IssuerConfig `yaml:"issuer"`

	// Kubernetes configures worker pod discovery.
	Kubernetes KubernetesConfig `yaml:"kubernetes"`

	// Queue configures task defaults and wait estimation.
	Queue QueueConfig `yaml:"queue"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that may vary per environment.
type Overrides struct {
	Listen     string            `yaml:"listen,omitempty"`
	RunDir     string            `yaml:"run_dir,omitempty"`
	Redis      *RedisConfig      `yaml:"redis,omitempty"`
	Issuer     *IssuerConfig     `yaml:"issuer,omitempty"`
	Kubernetes *KubernetesConfig `yaml:"kubernetes,omitempty"`
	Queue      *QueueConfig      `yaml:"queue,omitempty"`
}

// RedisConfig configures the shared store connection.
type RedisConfig struct {
	// Address is the host:port of the Redis instance.
	Address string `yaml:"address"`

	// Password is the AUTH password. Empty means no authentication.
	Password string `yaml:"password"`

	// DB is the logical database number.
	DB int `yaml:"db"`

	// Prefix namespaces every foreman key. Default "foreman".
	Prefix string `yaml:"prefix"`
}

// IssuerConfig configures verification-key fetching from the identity
// issuer.
type IssuerConfig struct {
	// URL is the issuer base URL (e.g., "https://auth.example.com").
	// Required.
	URL string `yaml:"url"`

	// JWKSPath is the well-known document path appended to URL.
	// Default "/.well-known/jwks.json".
	JWKSPath string `yaml:"jwks_path"`

	// Freshness is how long a fetched key set is served without a
	// refresh attempt, as a Go duration string. Default "1h".
	Freshness string `yaml:"freshness"`
}

// FreshnessWindow returns the parsed Freshness duration. Validate
// guarantees it parses; unvalidated configs fall back to one hour.
func (c IssuerConfig) FreshnessWindow() time.Duration {
	window, err := time.ParseDuration(c.Freshness)
	if err != nil || window <= 0 {
		return time.Hour
	}
	return window
}

// JWKSURL returns the full URL of the key-set document.
func (c IssuerConfig) JWKSURL() string {
	path := c.JWKSPath
	if path == "" {
		path = "/.well-known/jwks.json"
	}
	return c.URL + path
}

// KubernetesConfig configures worker pod discovery.
type KubernetesConfig struct {
	// Namespace is where agent pods run.
	Namespace string `yaml:"namespace"`

	// Kubeconfig is a kubeconfig file path for out-of-cluster use.
	// Empty means in-cluster configuration.
	Kubeconfig string `yaml:"kubeconfig"`
}

// QueueConfig configures task defaults and the wait-time model.
type QueueConfig struct {
	// DefaultBranch is assigned to tasks submitted without one.
	DefaultBranch string `yaml:"default_branch"`

	// AverageTaskSeconds is the assumed task duration for wait
	// estimates.
	AverageTaskSeconds int `yaml:"average_task_seconds"`

	// TasksPerWorker is the autoscaling ratio the wait model assumes:
	// one concurrent worker per this many queued tasks.
	TasksPerWorker int `yaml:"tasks_per_worker"`
}

// Default returns the base configuration. The config file is still
// required — defaults exist so optional fields have sensible values,
// not as a substitute for the file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen:      ":8080",
		RunDir:      "/run/foreman",
		Redis: RedisConfig{
			Address: "localhost:6379",
			Prefix:  "foreman",
		},
		Issuer: IssuerConfig{
			JWKSPath:  "/.well-known/jwks.json",
			Freshness: "1h",
		},
		Kubernetes: KubernetesConfig{
			Namespace: "foreman",
		},
		Queue: QueueConfig{
			DefaultBranch:      "main",
			AverageTaskSeconds: 300,
			TasksPerWorker:     3,
		},
	}
}

// Load reads the config file named by FOREMAN_CONFIG. Fails if the
// variable is unset — there are no fallback locations.
func Load() (*Config, error) {
	path := os.Getenv("FOREMAN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("FOREMAN_CONFIG environment variable not set; " +
			"set it to the path of your foreman.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path, applies environment
// overrides, and expands ${VAR} references in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// applyOverrides merges the section matching cfg.Environment into the
// base values. Only non-zero override fields take effect.
func (c *Config) applyOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if overrides.RunDir != "" {
		c.RunDir = overrides.RunDir
	}
	if overrides.Redis != nil {
		if overrides.Redis.Address != "" {
			c.Redis.Address = overrides.Redis.Address
		}
		if overrides.Redis.Password != "" {
			c.Redis.Password = overrides.Redis.Password
		}
		if overrides.Redis.DB != 0 {
			c.Redis.DB = overrides.Redis.DB
		}
		if overrides.Redis.Prefix != "" {
			c.Redis.Prefix = overrides.Redis.Prefix
		}
	}
	if overrides.Issuer != nil {
		if overrides.Issuer.URL != "" {
			c.Issuer.URL = overrides.Issuer.URL
		}
		if overrides.Issuer.JWKSPath != "" {
			c.Issuer.JWKSPath = overrides.Issuer.JWKSPath
		}
		if overrides.Issuer.Freshness != "" {
			c.Issuer.Freshness = overrides.Issuer.Freshness
		}
	}
	if overrides.Kubernetes != nil {
		if overrides.Kubernetes.Namespace != "" {
			c.Kubernetes.Namespace = overrides.Kubernetes.Namespace
		}
		if overrides.Kubernetes.Kubeconfig != "" {
			c.Kubernetes.Kubeconfig = overrides.Kubernetes.Kubeconfig
		}
	}
	if overrides.Queue != nil {
		if overrides.Queue.DefaultBranch != "" {
			c.Queue.DefaultBranch = overrides.Queue.DefaultBranch
		}
		if overrides.Queue.AverageTaskSeconds != 0 {
			c.Queue.AverageTaskSeconds = overrides.Queue.AverageTaskSeconds
		}
		if overrides.Queue.TasksPerWorker != 0 {
			c.Queue.TasksPerWorker = overrides.Queue.TasksPerWorker
		}
	}
}

// expandPaths expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandPaths() {
	c.RunDir = expandVars(c.RunDir)
	c.Kubernetes.Kubeconfig = expandVars(c.Kubernetes.Kubeconfig)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration, collecting every problem rather
// than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.RunDir == "" {
		errs = append(errs, errors.New("run_dir is required"))
	}
	if c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address is required"))
	}
	if c.Redis.Prefix == "" {
		errs = append(errs, errors.New("redis.prefix is required"))
	}

	if c.Issuer.URL == "" {
		errs = append(errs, errors.New("issuer.url is required"))
	} else if parsed, err := url.Parse(c.Issuer.URL); err != nil ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("issuer.url %q is not an http(s) URL", c.Issuer.URL))
	}
	if c.Issuer.Freshness != "" {
		if window, err := time.ParseDuration(c.Issuer.Freshness); err != nil {
			errs = append(errs, fmt.Errorf("issuer.freshness %q: %w", c.Issuer.Freshness, err))
		} else if window <= 0 {
			errs = append(errs, fmt.Errorf("issuer.freshness must be positive, got %q", c.Issuer.Freshness))
		}
	}

	if c.Kubernetes.Namespace == "" {
		errs = append(errs, errors.New("kubernetes.namespace is required"))
	}

	if c.Queue.DefaultBranch == "" {
		errs = append(errs, errors.New("queue.default_branch is required"))
	}
	if c.Queue.AverageTaskSeconds <= 0 {
		errs = append(errs, fmt.Errorf("queue.average_task_seconds must be positive, got %d", c.Queue.AverageTaskSeconds))
	}
	if c.Queue.TasksPerWorker <= 0 {
		errs = append(errs, fmt.Errorf("queue.tasks_per_worker must be positive, got %d", c.Queue.TasksPerWorker))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
