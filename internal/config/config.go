// Package config provides unified configuration for the snapshot
// governance tooling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapgov/snapgov/pkg/types"
)

// ExportSemantics describes how a dataset's snapshots relate to each
// other. It is declared per dataset, never inferred.
type ExportSemantics string

const (
	// ExportIncremental means each snapshot only adds new rows relative
	// to earlier snapshots.
	ExportIncremental ExportSemantics = "incremental"

	// ExportFull means each snapshot is a complete re-export; unioning
	// snapshots across dates multiplies row counts.
	ExportFull ExportSemantics = "full"
)

// Config holds the unified configuration for the governance tooling.
type Config struct {
	// DataDir is the base directory for tool-managed files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// RegistryPath is the SQLite registry file; defaults under DataDir
	RegistryPath string `json:"registry_path" yaml:"registry_path"`

	// Storage configures where partitions live
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Sources maps source identifiers to their configuration
	Sources map[string]SourceConfig `json:"sources" yaml:"sources"`

	// Validation configures validation runs
	Validation ValidationConfig `json:"validation" yaml:"validation"`
}

// StorageConfig holds partition storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Root is the lake root for local storage (or key prefix for s3)
	Root string `json:"root" yaml:"root"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// SourceConfig holds per-source configuration.
type SourceConfig struct {
	// Freshness thresholds for all datasets of this source
	Freshness FreshnessConfig `json:"freshness" yaml:"freshness"`

	// Datasets maps dataset identifiers to their configuration
	Datasets map[string]DatasetConfig `json:"datasets" yaml:"datasets"`
}

// FreshnessConfig holds staleness thresholds in whole days.
// Daily-cadence sources get tight thresholds; sporadic reference feeds
// get loose ones, because a uniform threshold produces false alarms for
// slow feeds and false confidence for fast ones.
type FreshnessConfig struct {
	WarnAfterDays  int `json:"warn_after_days" yaml:"warn_after_days"`
	ErrorAfterDays int `json:"error_after_days" yaml:"error_after_days"`
}

// DatasetConfig holds per-dataset configuration.
type DatasetConfig struct {
	// Strategy names the selection strategy: latest_only,
	// baseline_plus_latest, all
	Strategy string `json:"strategy" yaml:"strategy"`

	// BaselineDate anchors baseline_plus_latest (YYYY-MM-DD)
	BaselineDate string `json:"baseline_date" yaml:"baseline_date"`

	// ExportSemantics declares snapshot semantics: incremental, full
	ExportSemantics ExportSemantics `json:"export_semantics" yaml:"export_semantics"`

	// Delta thresholds for row-count change classification
	Delta DeltaConfig `json:"delta" yaml:"delta"`

	// WeeksPerSeason enables week-within-season gap detection when > 0
	WeeksPerSeason int `json:"weeks_per_season" yaml:"weeks_per_season"`

	// SeasonColumn and WeekColumn name the CSV columns holding the
	// season start year and week number, for gap detection
	SeasonColumn string `json:"season_column" yaml:"season_column"`
	WeekColumn   string `json:"week_column" yaml:"week_column"`

	// IdentityColumn names the CSV column joined against the crosswalk
	// for mapping-rate checks
	IdentityColumn string `json:"identity_column" yaml:"identity_column"`

	// MappingFloorPct is the minimum acceptable mapping rate (percent);
	// 0 disables the check for this dataset
	MappingFloorPct float64 `json:"mapping_floor_pct" yaml:"mapping_floor_pct"`
}

// DeltaConfig holds row-count delta thresholds. A 20% swing is normal
// for a growing weekly feed and alarming for a stable reference table,
// so these are per-dataset, not global constants.
type DeltaConfig struct {
	// MinPct flags percentage growth below this as stagnant during an
	// active period (0 disables)
	MinPct float64 `json:"min_pct" yaml:"min_pct"`

	// MaxPct is the absolute percent change beyond which growth is
	// anomalous
	MaxPct float64 `json:"max_pct" yaml:"max_pct"`

	// StagnantAbs flags deltas at or below this absolute row count as
	// stagnant during an active reporting period
	StagnantAbs int64 `json:"stagnant_abs" yaml:"stagnant_abs"`
}

// ValidationConfig holds validation run configuration.
type ValidationConfig struct {
	// Timeout bounds each individual validation
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Concurrency is the number of datasets validated in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/snapgov",
		Storage: StorageConfig{
			Type: "local",
		},
		Sources: map[string]SourceConfig{},
		Validation: ValidationConfig{
			Timeout:     2 * time.Minute,
			Concurrency: 4,
		},
	}
}

// DefaultFreshness is applied when a source declares no thresholds.
var DefaultFreshness = FreshnessConfig{WarnAfterDays: 2, ErrorAfterDays: 7}

// DefaultDelta is applied when a dataset declares no delta thresholds.
var DefaultDelta = DeltaConfig{MaxPct: 20}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/snapgov"
	}
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.DataDir, "registry.db")
	}
	if c.Storage.Root == "" && c.Storage.Type == "local" {
		c.Storage.Root = filepath.Join(c.DataDir, "lake")
	}
	if c.Validation.Timeout <= 0 {
		c.Validation.Timeout = 2 * time.Minute
	}
	if c.Validation.Concurrency <= 0 {
		c.Validation.Concurrency = 4
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	for source, sc := range c.Sources {
		f := sc.Freshness
		if f.WarnAfterDays < 0 || f.ErrorAfterDays < 0 {
			return fmt.Errorf("source %s: freshness thresholds must be non-negative", source)
		}
		if f.ErrorAfterDays != 0 && f.WarnAfterDays > f.ErrorAfterDays {
			return fmt.Errorf("source %s: warn_after_days (%d) exceeds error_after_days (%d)",
				source, f.WarnAfterDays, f.ErrorAfterDays)
		}

		for dataset, dc := range sc.Datasets {
			if dc.Strategy != "" {
				if _, err := types.ParseStrategy(dc.Strategy, dc.BaselineDate); err != nil {
					return fmt.Errorf("dataset %s/%s: %w", source, dataset, err)
				}
			}
			switch dc.ExportSemantics {
			case "", ExportIncremental, ExportFull:
			default:
				return fmt.Errorf("dataset %s/%s: invalid export_semantics %q",
					source, dataset, dc.ExportSemantics)
			}
			if dc.Delta.MaxPct < 0 || dc.Delta.StagnantAbs < 0 {
				return fmt.Errorf("dataset %s/%s: delta thresholds must be non-negative",
					source, dataset)
			}
			if dc.MappingFloorPct < 0 || dc.MappingFloorPct > 100 {
				return fmt.Errorf("dataset %s/%s: mapping_floor_pct must be within [0,100]",
					source, dataset)
			}
		}
	}

	return nil
}

// StrategyFor returns the configured selection strategy for a dataset,
// defaulting to latest_only when nothing is declared.
func (c *Config) StrategyFor(ref types.DatasetRef) (types.Strategy, error) {
	dc, ok := c.datasetConfig(ref)
	if !ok || dc.Strategy == "" {
		return types.LatestOnly(), nil
	}
	return types.ParseStrategy(dc.Strategy, dc.BaselineDate)
}

// FreshnessFor returns the freshness thresholds for a source.
func (c *Config) FreshnessFor(source string) FreshnessConfig {
	sc, ok := c.Sources[source]
	if !ok || (sc.Freshness.WarnAfterDays == 0 && sc.Freshness.ErrorAfterDays == 0) {
		return DefaultFreshness
	}
	return sc.Freshness
}

// DeltaFor returns the delta thresholds for a dataset.
func (c *Config) DeltaFor(ref types.DatasetRef) DeltaConfig {
	dc, ok := c.datasetConfig(ref)
	if !ok || (dc.Delta.MaxPct == 0 && dc.Delta.StagnantAbs == 0) {
		return DefaultDelta
	}
	return dc.Delta
}

// DatasetFor returns the dataset configuration, zero-valued when absent.
func (c *Config) DatasetFor(ref types.DatasetRef) DatasetConfig {
	dc, _ := c.datasetConfig(ref)
	return dc
}

func (c *Config) datasetConfig(ref types.DatasetRef) (DatasetConfig, bool) {
	sc, ok := c.Sources[ref.Source]
	if !ok {
		return DatasetConfig{}, false
	}
	dc, ok := sc.Datasets[ref.Dataset]
	return dc, ok
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SNAPGOV_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SNAPGOV_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SNAPGOV_REGISTRY_PATH"); v != "" {
		cfg.RegistryPath = v
	}
	if v := os.Getenv("SNAPGOV_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SNAPGOV_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}
	if v := os.Getenv("SNAPGOV_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SNAPGOV_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SNAPGOV_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SNAPGOV_VALIDATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Validation.Timeout = d
		}
	}
	if v := os.Getenv("SNAPGOV_VALIDATION_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Validation.Concurrency)
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.RegistryPath)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Root)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
