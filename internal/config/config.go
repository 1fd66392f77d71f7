// File: internal/config/config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/uatu-sec/riskgate/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Engine() EngineConfig
	Weights() WeightsConfig
	Blend() BlendConfig
	Baseline() BaselineConfig
	Trend() TrendConfig
	Gate() GateConfig
	Portfolio() PortfolioConfig

	// Setters for the handful of values CLI flags may override at runtime.
	SetEngineWorkerConcurrency(int)
	SetGateSoftFail(bool)
	SetPortfolioMode(schemas.WeightingMode)
	SetTrendWindow(int)
	SetBaselineDir(string)
}

// Config holds the entire application configuration. Fields are exported for
// viper unmarshaling; access from the rest of the codebase goes through the
// Interface getters.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	WeightsCfg   WeightsConfig   `mapstructure:"weights" yaml:"weights"`
	BlendCfg     BlendConfig     `mapstructure:"blend" yaml:"blend"`
	BaselineCfg  BaselineConfig  `mapstructure:"baseline" yaml:"baseline"`
	TrendCfg     TrendConfig     `mapstructure:"trend" yaml:"trend"`
	GateCfg      GateConfig      `mapstructure:"gate" yaml:"gate"`
	PortfolioCfg PortfolioConfig `mapstructure:"portfolio" yaml:"portfolio"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Weights() WeightsConfig     { return c.WeightsCfg }
func (c *Config) Blend() BlendConfig         { return c.BlendCfg }
func (c *Config) Baseline() BaselineConfig   { return c.BaselineCfg }
func (c *Config) Trend() TrendConfig         { return c.TrendCfg }
func (c *Config) Gate() GateConfig           { return c.GateCfg }
func (c *Config) Portfolio() PortfolioConfig { return c.PortfolioCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetEngineWorkerConcurrency(w int) { c.EngineCfg.WorkerConcurrency = w }
func (c *Config) SetGateSoftFail(b bool)           { c.GateCfg.SoftFail = b }
func (c *Config) SetPortfolioMode(m schemas.WeightingMode) {
	c.PortfolioCfg.Mode = string(m)
}
func (c *Config) SetTrendWindow(n int)    { c.TrendCfg.Window = n }
func (c *Config) SetBaselineDir(d string) { c.BaselineCfg.Dir = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the connection details for the optional run-history
// database. An empty URL disables persistence entirely.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EngineConfig configures the fan-out scoring engine.
type EngineConfig struct {
	// WorkerConcurrency bounds how many contract pipelines run in parallel.
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
}

// WeightsConfig enumerates every tunable of the function scorer. The same
// engine supports re-tuned weight tables without code change; nothing in the
// scorer is a hidden constant.
type WeightsConfig struct {
	// Static is the multiplier applied to the severity ordinal of a
	// static-analysis signal.
	Static float64 `mapstructure:"static" yaml:"static"`
	// Stride maps each STRIDE category to the presence weight added once per
	// tagged signal.
	Stride map[string]float64 `mapstructure:"stride" yaml:"stride"`
	// Tests maps a generated-test suite to the weight of one failed test.
	Tests map[string]float64 `mapstructure:"tests" yaml:"tests"`
	// Incomplete is the weight of one incomplete (not failed) test signal.
	Incomplete float64 `mapstructure:"incomplete" yaml:"incomplete"`
	// IncompleteCap bounds the total score contribution of incomplete-test
	// signals, so "tool unavailable" can never masquerade as "vulnerable".
	IncompleteCap float64 `mapstructure:"incomplete_cap" yaml:"incomplete_cap"`
}

// BlendConfig controls how function scores reduce to a contract score.
// overall = clamp(MeanWeight*mean(scores) + MaxWeight*max(scores), 0, 100),
// so a single catastrophic function cannot be diluted to invisibility by many
// benign ones.
type BlendConfig struct {
	MeanWeight float64 `mapstructure:"mean_weight" yaml:"mean_weight"`
	MaxWeight  float64 `mapstructure:"max_weight" yaml:"max_weight"`
	// TopFunctions is the N used for a contract's top-risky list.
	TopFunctions int `mapstructure:"top_functions" yaml:"top_functions"`
}

// BaselineConfig configures the baseline store and the promotion policy.
type BaselineConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ProtectedBranches lists the CI branches from which a promotion is
	// authorized. Promotions from any other context are rejected.
	ProtectedBranches []string `mapstructure:"protected_branches" yaml:"protected_branches"`
}

// TrendConfig configures the per-entity history windows.
type TrendConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Window is the maximum number of retained samples per entity.
	Window int `mapstructure:"window" yaml:"window"`
	// Epsilon is the flat-band width for direction classification.
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon"`
}

// ThresholdOverride optionally replaces the global gate thresholds for one
// contract id. Nil fields fall back to the global value.
type ThresholdOverride struct {
	MaxOverall *float64 `mapstructure:"max_overall" yaml:"max_overall"`
	MaxDelta   *float64 `mapstructure:"max_delta" yaml:"max_delta"`
}

// PercentileConfig enables gating against the history window distribution.
type PercentileConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// P is the percentile (0,100] the current overall must not exceed.
	P float64 `mapstructure:"p" yaml:"p"`
}

// GateConfig holds the pass/fail rule thresholds.
type GateConfig struct {
	MaxOverall float64                      `mapstructure:"max_overall" yaml:"max_overall"`
	MaxDelta   float64                      `mapstructure:"max_delta" yaml:"max_delta"`
	Overrides  map[string]ThresholdOverride `mapstructure:"overrides" yaml:"overrides"`
	Percentile PercentileConfig             `mapstructure:"percentile" yaml:"percentile"`
	// SoftFail downgrades a would-be failure to a warning verdict.
	SoftFail bool `mapstructure:"soft_fail" yaml:"soft_fail"`
}

// PortfolioConfig configures the portfolio aggregation step.
type PortfolioConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
	// WeightMapFile optionally points at a JSON map of contract id to weight
	// (e.g. total-value-locked) for the weighted mode.
	WeightMapFile string `mapstructure:"weight_map_file" yaml:"weight_map_file"`
	// TopContracts is the N used for the portfolio's top-contracts list.
	TopContracts int `mapstructure:"top_contracts" yaml:"top_contracts"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "riskgate")
	v.SetDefault("logger.log_file", "riskgate.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 8)

	// -- Weights --
	v.SetDefault("weights.static", 2.5)
	v.SetDefault("weights.stride", map[string]float64{
		string(schemas.StrideElevationOfPrivilege):  7,
		string(schemas.StrideTampering):             6,
		string(schemas.StrideInformationDisclosure): 6,
		string(schemas.StrideSpoofing):              6,
		string(schemas.StrideDenialOfService):       3,
		string(schemas.StrideRepudiation):           2,
	})
	v.SetDefault("weights.tests", map[string]float64{
		string(schemas.SuiteEoP):      8,
		string(schemas.SuiteNegative): 5,
		string(schemas.SuiteStress):   3,
	})
	v.SetDefault("weights.incomplete", 2)
	v.SetDefault("weights.incomplete_cap", 15)

	// -- Blend --
	v.SetDefault("blend.mean_weight", 0.5)
	v.SetDefault("blend.max_weight", 0.5)
	v.SetDefault("blend.top_functions", 5)

	// -- Baseline --
	v.SetDefault("baseline.dir", "baselines")
	v.SetDefault("baseline.protected_branches", []string{"main", "master"})

	// -- Trend --
	v.SetDefault("trend.dir", "history")
	v.SetDefault("trend.window", 10)
	v.SetDefault("trend.epsilon", 0.5)

	// -- Gate --
	v.SetDefault("gate.max_overall", 70.0)
	v.SetDefault("gate.max_delta", 10.0)
	v.SetDefault("gate.percentile.enabled", false)
	v.SetDefault("gate.percentile.p", 90.0)
	v.SetDefault("gate.soft_fail", false)

	// -- Portfolio --
	v.SetDefault("portfolio.mode", string(schemas.WeightingAverage))
	v.SetDefault("portfolio.top_contracts", 10)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if err := c.WeightsCfg.Validate(); err != nil {
		return fmt.Errorf("weights configuration invalid: %w", err)
	}
	if err := c.BlendCfg.Validate(); err != nil {
		return fmt.Errorf("blend configuration invalid: %w", err)
	}
	if err := c.TrendCfg.Validate(); err != nil {
		return fmt.Errorf("trend configuration invalid: %w", err)
	}
	if err := c.GateCfg.Validate(); err != nil {
		return fmt.Errorf("gate configuration invalid: %w", err)
	}
	if err := c.PortfolioCfg.Validate(); err != nil {
		return fmt.Errorf("portfolio configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the scorer weight tables.
func (w *WeightsConfig) Validate() error {
	if w.Static < 0 {
		return fmt.Errorf("static weight must not be negative")
	}
	for cat := range w.Stride {
		if !schemas.StrideCategory(cat).Valid() {
			return fmt.Errorf("unknown stride category %q in weight table", cat)
		}
	}
	if w.Incomplete < 0 {
		return fmt.Errorf("incomplete weight must not be negative")
	}
	if w.IncompleteCap < 0 || w.IncompleteCap > 100 {
		return fmt.Errorf("incomplete_cap must be in [0,100]")
	}
	return nil
}

// Validate checks the contract blend constants.
func (b *BlendConfig) Validate() error {
	if b.MeanWeight < 0 || b.MaxWeight < 0 {
		return fmt.Errorf("blend weights must not be negative")
	}
	if b.MeanWeight == 0 && b.MaxWeight == 0 {
		return fmt.Errorf("at least one blend weight must be positive")
	}
	if b.TopFunctions <= 0 {
		return fmt.Errorf("top_functions must be a positive integer")
	}
	return nil
}

// Validate checks the trend window settings.
func (t *TrendConfig) Validate() error {
	if t.Window <= 0 {
		return fmt.Errorf("window must be a positive integer")
	}
	if t.Epsilon < 0 {
		return fmt.Errorf("epsilon must not be negative")
	}
	return nil
}

// Validate checks the gate thresholds.
func (g *GateConfig) Validate() error {
	if g.Percentile.Enabled && (g.Percentile.P <= 0 || g.Percentile.P > 100) {
		return fmt.Errorf("percentile.p must be in (0,100]")
	}
	return nil
}

// Validate checks the portfolio aggregation settings.
func (p *PortfolioConfig) Validate() error {
	if !schemas.WeightingMode(p.Mode).Valid() {
		return fmt.Errorf("unknown portfolio mode %q", p.Mode)
	}
	if p.TopContracts <= 0 {
		return fmt.Errorf("top_contracts must be a positive integer")
	}
	return nil
}
