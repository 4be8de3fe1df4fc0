// Package config loads and validates the engine configuration.
// Credentials never live in the config file; they come from the
// environment (see cmd/engine).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"binance-grid-engine-go/internal/engine"
	"binance-grid-engine-go/internal/models"
)

// Load reads the JSON config at path, fills in defaults and validates
// it. Validation failures come back as *engine.ConfigurationError so
// the caller can refuse to start any grid.
func Load(path string) (*models.EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg models.EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero fields with the engine defaults.
func ApplyDefaults(cfg *models.EngineConfig) {
	setInt(&cfg.MonitorIntervalSec, 60)
	setInt(&cfg.LevelsPerSide, 5)
	setFloat(&cfg.GridSpacing, 0.025)
	setFloat(&cfg.SpacingGrowth, 0.1)
	setFloat(&cfg.SizeGrowth, 0.05)
	setFloat(&cfg.ReplacementSpacingFactor, 1.5)
	setFloat(&cfg.MinSpacing, 0.02)
	setFloat(&cfg.MaxSpacing, 0.08)
	setFloat(&cfg.NotionalBuffer, 0.02)
	setFloat(&cfg.BaseActivationRatio, 1.0)
	setFloat(&cfg.RateLimitPerSec, 50)
	setInt(&cfg.RateBurst, 100)
	setInt(&cfg.RetryAttempts, 3)
	setInt(&cfg.RetryInitialDelayMs, 500)
	setInt(&cfg.RulesTTLMin, 60)
	setInt(&cfg.RulesRejectionLimit, 3)

	setInt(&cfg.Regime.AdaptIntervalSec, 300)
	setFloat(&cfg.Regime.SpacingHysteresis, 0.005)
	setInt(&cfg.Regime.WindowSize, 60)

	setFloat(&cfg.Reset.DeviationThreshold, 0.15)
	setInt(&cfg.Reset.CooldownSec, 3600)
	setInt(&cfg.Reset.MaxPerDay, 5)

	setFloat(&cfg.Compound.ProfitStep, 25)
	setFloat(&cfg.Compound.Increment, 0.1)
	setFloat(&cfg.Compound.Cap, 3.0)
	setFloat(&cfg.Compound.Floor, 0.5)
	setInt(&cfg.Compound.KellyMinTrades, 20)
	setFloat(&cfg.Compound.KellySafety, 0.5)
	setFloat(&cfg.Compound.KellyMaxFraction, 0.25)

	if cfg.DBPath == "" && !cfg.Paper {
		cfg.DBPath = "data/engine.db"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "console"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects configurations no grid should ever start with.
func Validate(cfg *models.EngineConfig) error {
	if cfg.GridSpacing <= 0 || cfg.GridSpacing >= 0.5 {
		return confErr("grid_spacing %.4f must be in (0, 0.5)", cfg.GridSpacing)
	}
	if cfg.MinSpacing >= cfg.MaxSpacing {
		return confErr("min_spacing %.4f must be below max_spacing %.4f", cfg.MinSpacing, cfg.MaxSpacing)
	}
	if cfg.LevelsPerSide < 1 {
		return confErr("levels_per_side %d must be at least 1", cfg.LevelsPerSide)
	}
	if cfg.ReplacementSpacingFactor < 1 {
		return confErr("replacement_spacing_factor %.2f must be at least 1", cfg.ReplacementSpacingFactor)
	}
	if cfg.NotionalBuffer < 0 || cfg.NotionalBuffer > 0.5 {
		return confErr("notional_buffer %.4f must be in [0, 0.5]", cfg.NotionalBuffer)
	}
	if cfg.Reset.DeviationThreshold <= 0 || cfg.Reset.DeviationThreshold >= 1 {
		return confErr("reset deviation_threshold %.4f must be in (0, 1)", cfg.Reset.DeviationThreshold)
	}
	for i, seed := range cfg.Grids {
		if seed.ClientID == "" || seed.Symbol == "" {
			return confErr("grid seed %d needs client_id and symbol", i)
		}
		if seed.Capital <= 0 {
			return confErr("grid seed %s/%s capital %.2f must be positive", seed.ClientID, seed.Symbol, seed.Capital)
		}
	}
	return nil
}

func confErr(format string, args ...interface{}) error {
	return &engine.ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
