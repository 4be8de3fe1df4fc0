package models

// LogConfig controls logger output. Output is one of "console", "file", "both".
type LogConfig struct {
	Output     string `json:"output"`
	Level      string `json:"level"`
	FilePath   string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// GridSeed describes one grid the engine starts on boot. PaperPrice
// seeds the simulated market in paper mode and is ignored live.
type GridSeed struct {
	ClientID   string  `json:"client_id"`
	Symbol     string  `json:"symbol"`
	Capital    float64 `json:"capital"`
	PaperPrice float64 `json:"paper_price,omitempty"`
}

// RegimeConfig tunes the volatility regime adapter. Thresholds are
// annualized volatility fractions, multipliers apply to base spacing
// and per-level order size.
type RegimeConfig struct {
	AdaptIntervalSec      int     `json:"adapt_interval_sec"`
	SpacingHysteresis     float64 `json:"spacing_hysteresis"`
	WindowSize            int     `json:"window_size"`
	LowVolThreshold       float64 `json:"low_vol_threshold"`
	HighVolThreshold      float64 `json:"high_vol_threshold"`
	ExtremeVolThreshold   float64 `json:"extreme_vol_threshold"`
	LowVolSpacingMult     float64 `json:"low_vol_spacing_mult"`
	HighVolSpacingMult    float64 `json:"high_vol_spacing_mult"`
	ExtremeVolSpacingMult float64 `json:"extreme_vol_spacing_mult"`
	LowVolSizeMult        float64 `json:"low_vol_size_mult"`
	HighVolSizeMult       float64 `json:"high_vol_size_mult"`
}

// ResetConfig tunes the auto-reset supervisor.
type ResetConfig struct {
	DeviationThreshold float64 `json:"deviation_threshold"`
	CooldownSec        int     `json:"cooldown_sec"`
	MaxPerDay          int     `json:"max_per_day"`
	EscalateAfter      int     `json:"escalate_after"`
	RelaxAfterHours    int     `json:"relax_after_hours"`
}

// CompoundConfig tunes capital compounding and the Kelly cap.
type CompoundConfig struct {
	ProfitStep       float64 `json:"profit_step"`
	Increment        float64 `json:"increment"`
	Cap              float64 `json:"cap"`
	Floor            float64 `json:"floor"`
	KellyMinTrades   int     `json:"kelly_min_trades"`
	KellySafety      float64 `json:"kelly_safety"`
	KellyMaxFraction float64 `json:"kelly_max_fraction"`
}

// EngineConfig is the full engine configuration loaded from the JSON
// config file. API credentials come from the environment, never from here.
type EngineConfig struct {
	IsTestnet bool   `json:"is_testnet"`
	Paper     bool   `json:"paper"`
	DBPath    string `json:"db_path"`

	MonitorIntervalSec       int     `json:"monitor_interval_sec"`
	LevelsPerSide            int     `json:"levels_per_side"`
	GridSpacing              float64 `json:"grid_spacing"`
	SpacingGrowth            float64 `json:"spacing_growth"`
	SizeGrowth               float64 `json:"size_growth"`
	ReplacementSpacingFactor float64 `json:"replacement_spacing_factor"`
	MinSpacing               float64 `json:"min_spacing"`
	MaxSpacing               float64 `json:"max_spacing"`
	NotionalBuffer           float64 `json:"notional_buffer"`
	BaseActivationRatio      float64 `json:"base_activation_ratio"`
	MarketTimingEnabled      bool    `json:"market_timing_enabled"`

	RateLimitPerSec     float64 `json:"rate_limit_per_sec"`
	RateBurst           int     `json:"rate_burst"`
	RetryAttempts       int     `json:"retry_attempts"`
	RetryInitialDelayMs int     `json:"retry_initial_delay_ms"`

	RulesTTLMin         int `json:"rules_ttl_min"`
	RulesRejectionLimit int `json:"rules_rejection_limit"`

	Regime   RegimeConfig   `json:"regime"`
	Reset    ResetConfig    `json:"reset"`
	Compound CompoundConfig `json:"compound"`

	Grids []GridSeed `json:"grids"`
	Log   LogConfig  `json:"log"`
}
