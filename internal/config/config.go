// Package config loads the assistant's configuration from a YAML file plus
// an environment overlay for secrets. Secrets never live in the YAML file.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/axiomtrader/assistant/internal/apperr"
)

// TradingMode selects the pipeline's tick cadence.
type TradingMode string

const (
	ModeShortTerm TradingMode = "short_term" // 5s tick
	ModeLongTerm  TradingMode = "long_term"  // 15s tick
)

// Risk holds the position-tracker risk thresholds. Defaults follow the more
// conservative of the two documented values (see SPEC_FULL.md §11).
type Risk struct {
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	StopWarningPct  float64 `yaml:"stop_warning_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	MajorGainPct    float64 `yaml:"major_gain_pct"`
	MaxHoldHours    float64 `yaml:"max_hold_hours"`
	MaxTradesPerDay int     `yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int `yaml:"max_consecutive_losses"`
	MinGapBetweenOpens time.Duration `yaml:"min_gap_between_opens"`
}

// Assets lists the monitored instruments per asset class, plus the
// localized-name aliases the Conversation Router resolves free-form
// mentions through (spec.md §4.8's multilingual slot extraction).
type Assets struct {
	Equity  []string          `yaml:"equity"`
	Crypto  []string          `yaml:"crypto"`
	Aliases map[string]string `yaml:"aliases"`
}

// LLM configures the task-class -> provider fallback chain.
type LLM struct {
	TaskMap map[string][]string `yaml:"task_map"`
	CallBudget time.Duration     `yaml:"call_budget"`
	WorkerPoolSize int           `yaml:"worker_pool_size"`
}

// Auth configures the conversation router's allow-list.
type Auth struct {
	Users []string `yaml:"users"`
}

// Anomaly configures per-metric rolling baseline horizons and debounce.
type Anomaly struct {
	DefaultHorizon   time.Duration            `yaml:"default_horizon"`
	Horizons         map[string]time.Duration `yaml:"horizons"`
	DebounceSeconds  int                      `yaml:"debounce_seconds"`
}

// Storage configures the optional persisted-state backend.
type Storage struct {
	SQLitePath    string `yaml:"sqlite_path"`
	ReportsDir    string `yaml:"reports_dir"`
}

// HTTP configures the operator-facing HTTP surface.
type HTTP struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the fully-resolved configuration for a run.
type Config struct {
	TradingMode TradingMode `yaml:"trading_mode"`
	Assets      Assets      `yaml:"assets"`
	Risk        Risk        `yaml:"risk"`
	LLM         LLM         `yaml:"llm"`
	Auth        Auth        `yaml:"auth"`
	Anomaly     Anomaly     `yaml:"anomaly"`
	Storage     Storage     `yaml:"storage"`
	HTTP        HTTP        `yaml:"http"`
	LogLevel    string      `yaml:"log_level"`

	// Secrets, loaded from the environment only, never from YAML.
	ProviderAPIKeys map[string]string `yaml:"-"`
	ChatCredential  string            `yaml:"-"`
	CacheBackendURL string            `yaml:"-"`
	HTTPJWTSecret   string            `yaml:"-"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() Config {
	return Config{
		TradingMode: ModeShortTerm,
		Risk: Risk{
			MaxPositionPct:  0.15,
			StopLossPct:     -0.10,
			StopWarningPct:  -0.08,
			TakeProfitPct:   0.20,
			MajorGainPct:    0.15,
			MaxHoldHours:    10,
			MaxTradesPerDay: 3,
			MaxConsecutiveLosses: 3,
			MinGapBetweenOpens: time.Minute,
		},
		LLM: LLM{
			TaskMap: map[string][]string{
				"lightweight": {"localfunc"},
				"standard":    {"localfunc"},
				"complex":     {"localfunc"},
			},
			CallBudget:     30 * time.Second,
			WorkerPoolSize: 4,
		},
		Anomaly: Anomaly{
			DefaultHorizon:  60 * time.Minute,
			DebounceSeconds: 300,
		},
		Storage: Storage{
			ReportsDir: "reports",
		},
		HTTP: HTTP{
			ListenAddr: ":8090",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file into Default(), then overlays environment
// variables (including a .env file, if present) for secrets only.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, apperr.Wrap(apperr.ConfigurationError, "read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, apperr.Wrap(apperr.ConfigurationError, "parse config %s: %v", path, err)
	}

	_ = godotenv.Load() // optional; missing .env is not an error

	cfg.ProviderAPIKeys = map[string]string{
		"architect": os.Getenv("ARCHITECT_API_KEY"),
		"localai":   os.Getenv("LOCALAI_API_KEY"),
	}
	cfg.ChatCredential = os.Getenv("CHAT_TRANSPORT_TOKEN")
	cfg.CacheBackendURL = os.Getenv("CACHE_BACKEND_URL")
	cfg.HTTPJWTSecret = os.Getenv("HTTP_JWT_SECRET")
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants a malformed config would otherwise let
// slip past startup (spec.md §7 ConfigurationError policy: refuse to start).
func (c Config) Validate() error {
	if c.TradingMode != ModeShortTerm && c.TradingMode != ModeLongTerm {
		return apperr.Wrap(apperr.ConfigurationError, "unknown trading_mode %q", c.TradingMode)
	}
	if len(c.Assets.Equity) == 0 && len(c.Assets.Crypto) == 0 {
		return apperr.Wrap(apperr.ConfigurationError, "no assets configured")
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return apperr.Wrap(apperr.ConfigurationError, "risk.max_position_pct out of range: %v", c.Risk.MaxPositionPct)
	}
	if c.Risk.StopLossPct >= 0 {
		return apperr.Wrap(apperr.ConfigurationError, "risk.stop_loss_pct must be negative: %v", c.Risk.StopLossPct)
	}
	if c.Risk.TakeProfitPct <= 0 {
		return apperr.Wrap(apperr.ConfigurationError, "risk.take_profit_pct must be positive: %v", c.Risk.TakeProfitPct)
	}
	if len(c.LLM.TaskMap) == 0 {
		return apperr.Wrap(apperr.ConfigurationError, "llm.task_map is empty")
	}
	for _, class := range []string{"lightweight", "standard", "complex"} {
		if len(c.LLM.TaskMap[class]) == 0 {
			return apperr.Wrap(apperr.ConfigurationError, "llm.task_map missing providers for task class %q", class)
		}
	}
	return nil
}

// TickInterval returns the pipeline cadence for the configured trading mode.
func (c Config) TickInterval() time.Duration {
	if c.TradingMode == ModeLongTerm {
		return 15 * time.Second
	}
	return 5 * time.Second
}
