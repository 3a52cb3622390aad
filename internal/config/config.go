// Package config holds all configuration for the mission engine.
// Configuration is read from a YAML file with environment overrides applied
// on top, so deployments can tweak individual knobs without shipping a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all mission engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Mission MissionConfig `yaml:"mission"`
	Risk    RiskConfig    `yaml:"risk"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"JUNO_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"JUNO_SHUTDOWN_TIMEOUT"`
}

// EngineConfig configures the Mangle decision evaluator.
type EngineConfig struct {
	QueryTimeout     time.Duration `yaml:"query_timeout" env:"JUNO_ENGINE_TIMEOUT"`
	FactLimit        int           `yaml:"fact_limit" env:"JUNO_ENGINE_FACT_LIMIT"`
	RetryAttempts    int           `yaml:"retry_attempts" env:"JUNO_ENGINE_RETRIES"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" env:"JUNO_ENGINE_BACKOFF"`
	// RulesOverridePath, when set, is watched for changes and hot-reloaded
	// as a replacement progression rule set.
	RulesOverridePath string `yaml:"rules_override_path" env:"JUNO_ENGINE_RULES"`
}

// MissionConfig configures the shape of a mission.
type MissionConfig struct {
	QuestionCount   int   `yaml:"question_count"`
	RiskIndexes     []int `yaml:"risk_indexes"`
	TeamIndex       int   `yaml:"team_index"`
	LivesStart      int   `yaml:"lives_start"`
	MaxRegularLives int   `yaml:"max_regular_lives"`
	MaxTotalLives   int   `yaml:"max_total_lives"`
	BasePoints      int   `yaml:"base_points"`
	RiskMultiplier  int   `yaml:"risk_multiplier"`
	TeamMultiplier  int   `yaml:"team_multiplier"`
	// TeamThresholdPermille is the group success ratio (in permille) at or
	// above which the team question multiplier applies. The source material
	// disagreed with itself here, so it is an explicit knob.
	TeamThresholdPermille int `yaml:"team_threshold_permille" env:"JUNO_TEAM_THRESHOLD"`
}

// RiskConfig configures the client-side risk control machine.
type RiskConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Cooldown    time.Duration `yaml:"cooldown" env:"JUNO_RISK_COOLDOWN"`
}

// CacheConfig configures the session fact cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"JUNO_CACHE_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StoreConfig configures the finished-session archive.
type StoreConfig struct {
	Path string `yaml:"path" env:"JUNO_STORE_PATH"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" env:"JUNO_DEBUG"`
	Dir        string          `yaml:"dir" env:"JUNO_LOG_DIR"`
	Level      string          `yaml:"level" env:"JUNO_LOG_LEVEL"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			QueryTimeout:     5 * time.Second,
			FactLimit:        100000,
			RetryAttempts:    3,
			RetryBackoffBase: 100 * time.Millisecond,
		},
		Mission: MissionConfig{
			QuestionCount:         10,
			RiskIndexes:           []int{5, 10},
			TeamIndex:             9,
			LivesStart:            3,
			MaxRegularLives:       3,
			MaxTotalLives:         5,
			BasePoints:            100,
			RiskMultiplier:        2,
			TeamMultiplier:        3,
			TeamThresholdPermille: 750,
		},
		Risk: RiskConfig{
			MaxAttempts: 2,
			Cooldown:    60 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Store: StoreConfig{
			Path: "junosixteen.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load reads configuration from a YAML file, applying environment overrides.
// A missing file yields defaults with overrides applied.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Mission.QuestionCount <= 0 {
		return fmt.Errorf("mission.question_count must be positive, got %d", c.Mission.QuestionCount)
	}
	for _, idx := range c.Mission.RiskIndexes {
		if idx < 1 || idx > c.Mission.QuestionCount {
			return fmt.Errorf("mission.risk_indexes entry %d out of range [1,%d]", idx, c.Mission.QuestionCount)
		}
	}
	if c.Mission.TeamIndex < 1 || c.Mission.TeamIndex > c.Mission.QuestionCount {
		return fmt.Errorf("mission.team_index %d out of range [1,%d]", c.Mission.TeamIndex, c.Mission.QuestionCount)
	}
	if c.Mission.TeamThresholdPermille < 0 || c.Mission.TeamThresholdPermille > 1000 {
		return fmt.Errorf("mission.team_threshold_permille %d out of range [0,1000]", c.Mission.TeamThresholdPermille)
	}
	if c.Mission.MaxTotalLives < c.Mission.MaxRegularLives {
		return fmt.Errorf("mission.max_total_lives %d below max_regular_lives %d", c.Mission.MaxTotalLives, c.Mission.MaxRegularLives)
	}
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("engine.retry_attempts must be at least 1, got %d", c.Engine.RetryAttempts)
	}
	if c.Risk.MaxAttempts < 1 {
		return fmt.Errorf("risk.max_attempts must be at least 1, got %d", c.Risk.MaxAttempts)
	}
	return nil
}
