// Package config loads service configuration from a YAML file.
//
// A file is first checked against an embedded CUE schema, which rejects
// unknown keys and malformed values with positioned messages, then decoded
// over Default. The resulting Config is passed explicitly to every
// constructor; nothing reads configuration from the process environment.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Lock backends.
const (
	LockBackendSQLite = "sqlite"
	LockBackendEtcd   = "etcd"
)

// Config is the complete service configuration.
type Config struct {
	Database  string          `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Lock      LockConfig      `yaml:"lock"`
	External  ExternalConfig  `yaml:"external"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Aggregate AggregateConfig `yaml:"aggregate"`
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// PublicURL is the externally reachable root artifact locators use.
	PublicURL string `yaml:"public_url"`
}

// LockConfig configures assignment locking.
type LockConfig struct {
	Backend  string        `yaml:"backend"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
	Etcd     EtcdConfig    `yaml:"etcd"`
}

// EtcdConfig configures the etcd lock backend.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Prefix      string        `yaml:"prefix"`
}

// ExternalConfig configures the results gateway client.
type ExternalConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ArtifactsConfig configures result storage.
type ArtifactsConfig struct {
	OutputPrefix  string        `yaml:"output_prefix"`
	SigningSecret string        `yaml:"signing_secret"`
	URLTTL        time.Duration `yaml:"url_ttl"`
}

// AggregateConfig configures result collection.
type AggregateConfig struct {
	// MaxPages aborts collection past this many pages. Zero disables it.
	MaxPages int `yaml:"max_pages"`
}

// Default returns the configuration used for omitted fields.
func Default() *Config {
	return &Config{
		Database: "recon.db",
		Server: ServerConfig{
			Addr:      ":8080",
			PublicURL: "http://localhost:8080",
		},
		Lock: LockConfig{
			Backend:  LockBackendSQLite,
			LeaseTTL: 15 * time.Minute,
			Timeout:  60 * time.Second,
			Etcd: EtcdConfig{
				DialTimeout: 5 * time.Second,
				Prefix:      "/recon/locks",
			},
		},
		External: ExternalConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 30 * time.Second,
		},
		Artifacts: ArtifactsConfig{
			OutputPrefix: "results/",
			URLTTL:       time.Hour,
		},
		Aggregate: AggregateConfig{
			MaxPages: 10000,
		},
	}
}

// Load reads the file at path over Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse checks data against the schema and decodes it over Default.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkSchema unifies the YAML document with #Config.
func checkSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// SchemaError reports a configuration file that does not match the schema.
type SchemaError struct {
	Details string
}

func (e *SchemaError) Error() string {
	return "invalid configuration: " + strings.TrimSpace(e.Details)
}

// Validate checks constraints that span fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	switch c.Lock.Backend {
	case LockBackendSQLite:
	case LockBackendEtcd:
		if len(c.Lock.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("lock.etcd.endpoints is required for the etcd backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q is not one of sqlite, etcd", c.Lock.Backend))
	}
	if c.Lock.LeaseTTL <= 0 {
		errs = append(errs, errors.New("lock.lease_ttl must be positive"))
	}
	if c.Lock.Timeout <= 0 {
		errs = append(errs, errors.New("lock.timeout must be positive"))
	}
	if c.Aggregate.MaxPages < 0 {
		errs = append(errs, errors.New("aggregate.max_pages must not be negative"))
	}
	return errors.Join(errs...)
}
