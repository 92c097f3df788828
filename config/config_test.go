package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qianlnk/mindwolf/llm"
	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

const sampleYAML = `
game:
  total_players: 6
  role_distribution:
    werewolf: 2
    seer: 1
    witch: 1
    villager: 2
  discussion_time: 120
  last_words_time: 30
llm:
  enabled: true
  primary:
    base_url: https://llm.example.com
    model: test-model
    timeout: 15s
  fallbacks:
    - base_url: https://backup.example.com
  retry:
    max_attempts: 2
storage:
  enabled: false
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mindwolf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Expected config to be written, but got %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	// GIVEN a config file and an API key in the environment
	path := writeConfig(t, sampleYAML)
	t.Setenv("MINDWOLF_LLM_API_KEY", "sk-primary")
	t.Setenv("MINDWOLF_LLM_FALLBACK_KEYS", "sk-backup")

	// WHEN it is loaded
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected config to load, but got %v", err)
	}

	// THEN file values win over defaults
	if cfg.Game.TotalPlayers != 6 || cfg.Game.RoleDistribution[models.Werewolf] != 2 || cfg.Game.LastWordsTime != 30 {
		t.Errorf("Expected the 6 player setup, but got %+v", cfg.Game)
	}
	if cfg.Game.VotingTime != 60 {
		t.Errorf("Expected the default voting time, but got %d", cfg.Game.VotingTime)
	}
	if !cfg.LLM.Enabled || cfg.LLM.Primary.APIKey != "sk-primary" || cfg.LLM.Primary.Timeout != 15*time.Second {
		t.Errorf("Expected the primary endpoint from file and env, but got %+v", cfg.LLM.Primary)
	}
	if cfg.LLM.Retry.MaxAttempts != 2 || cfg.LLM.Retry.BaseDelay != time.Second {
		t.Errorf("Expected retry settings merged with defaults, but got %+v", cfg.LLM.Retry)
	}
	if cfg.Storage.Enabled || cfg.Log.Format != "json" {
		t.Errorf("Expected storage off and json logs, but got %+v %+v", cfg.Storage, cfg.Log)
	}

	t.Run("fallback inherits primary", func(t *testing.T) {
		if len(cfg.LLM.Fallbacks) != 1 {
			t.Fatalf("Expected one fallback, but got %d", len(cfg.LLM.Fallbacks))
		}
		fb := cfg.LLM.Fallbacks[0]
		if fb.Name != "fallback-1" || fb.Model != "test-model" || fb.Timeout != 15*time.Second || fb.MaxTokens != 2000 {
			t.Errorf("Expected inherited settings, but got %+v", fb)
		}
		if fb.APIKey != "sk-backup" || fb.BaseURL != "https://backup.example.com" {
			t.Errorf("Expected the fallback endpoint with its own key, but got %+v", fb)
		}
	})
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "game:\n  total_players: 10\n")
	t.Setenv("MINDWOLF_GAME_TOTAL_PLAYERS", "12")
	t.Setenv("MINDWOLF_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected config to load, but got %v", err)
	}
	if cfg.Game.TotalPlayers != 12 || cfg.Log.Level != "warn" {
		t.Errorf("Expected the environment to win, but got %d players at %s", cfg.Game.TotalPlayers, cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Errorf("Expected a missing explicit file to fail")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, "game:\n  total_players: 6\n  role_distribution:\n    werewolf: 1\n")
		if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Expected ErrInvalidConfig, but got %v", err)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	// no mindwolf.yaml in the package directory
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults to load, but got %v", err)
	}
	if cfg.Game.TotalPlayers != 8 || cfg.Server.Addr != ":8080" || cfg.LLM.Enabled || !cfg.Storage.Enabled {
		t.Errorf("Expected the built-in defaults, but got %+v", cfg)
	}
}

func validConfig() Config {
	return Config{
		Game:    models.DefaultGameConfig(),
		LLM:     LLMConfig{Retry: llm.DefaultRetryConfig()},
		Storage: StorageConfig{Enabled: true, Path: "mindwolf.db"},
		Log:     LogConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no players", func(c *Config) { c.Game.TotalPlayers = 0 }, false},
		{"too few players", func(c *Config) { c.Game.TotalPlayers = 2 }, false},
		{"unknown role", func(c *Config) { c.Game.RoleDistribution = map[models.Role]int{"bard": 8} }, false},
		{"negative count", func(c *Config) {
			c.Game.RoleDistribution = map[models.Role]int{models.Werewolf: 9, models.Villager: -1}
		}, false},
		{"count mismatch", func(c *Config) { c.Game.RoleDistribution = map[models.Role]int{models.Werewolf: 2} }, false},
		{"negative time", func(c *Config) { c.Game.NightTime = -1 }, false},
		{"no retries", func(c *Config) { c.LLM.Retry.MaxAttempts = 0 }, false},
		{"storage without path", func(c *Config) { c.Storage.Path = " " }, false},
		{"storage off without path", func(c *Config) { c.Storage = StorageConfig{} }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Expected no error, but got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, but got %v", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "JSON"})
	if err != nil {
		t.Fatalf("Expected logger, but got %v", err)
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected a JSON formatter, but got %T", logger.Formatter)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, but got %s", logger.GetLevel())
	}

	text, err := NewLogger(LogConfig{Level: "info"})
	if err != nil {
		t.Fatalf("Expected logger, but got %v", err)
	}
	if _, ok := text.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("Expected a text formatter, but got %T", text.Formatter)
	}

	if _, err := NewLogger(LogConfig{Level: "loud"}); err == nil {
		t.Errorf("Expected an unknown level to fail")
	}
}

func TestBuildGenerator(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	if gen := BuildGenerator(LLMConfig{}, log); gen != nil {
		t.Errorf("Expected no generator when disabled, but got %T", gen)
	}
	cfg := LLMConfig{
		Enabled:   true,
		Primary:   llm.EndpointConfig{BaseURL: "https://llm.example.com"},
		Fallbacks: []llm.EndpointConfig{{BaseURL: "https://backup.example.com"}},
		Retry:     llm.DefaultRetryConfig(),
	}
	if _, ok := BuildGenerator(cfg, log).(*llm.Manager); !ok {
		t.Errorf("Expected an llm manager when enabled")
	}
}
