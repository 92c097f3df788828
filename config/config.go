// Package config 服务和命令行共用的配置加载
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/qianlnk/mindwolf/llm"
	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "MINDWOLF"

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// LLMConfig 文本生成配置
type LLMConfig struct {
	Enabled   bool                 `mapstructure:"enabled"`
	Primary   llm.EndpointConfig   `mapstructure:"primary"`
	Fallbacks []llm.EndpointConfig `mapstructure:"fallbacks"`
	Retry     llm.RetryConfig      `mapstructure:"retry"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig 对局记录存储配置
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config 全部配置
type Config struct {
	Game    models.GameConfig `mapstructure:"game"`
	LLM     LLMConfig         `mapstructure:"llm"`
	Server  ServerConfig      `mapstructure:"server"`
	Storage StorageConfig     `mapstructure:"storage"`
	Log     LogConfig         `mapstructure:"log"`
}

// secrets 只从环境变量读取的密钥
type secrets struct {
	APIKey       string   `env:"MINDWOLF_LLM_API_KEY"`
	FallbackKeys []string `env:"MINDWOLF_LLM_FALLBACK_KEYS" envSeparator:","`
}

func setDefaults(v *viper.Viper) {
	game := models.DefaultGameConfig()
	v.SetDefault("game.total_players", game.TotalPlayers)
	v.SetDefault("game.discussion_time", game.DiscussionTime)
	v.SetDefault("game.voting_time", game.VotingTime)
	v.SetDefault("game.night_time", game.NightTime)
	v.SetDefault("game.last_words_time", 0)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.primary.name", "primary")
	v.SetDefault("llm.primary.base_url", "https://api.openai.com")
	v.SetDefault("llm.primary.api_key", "")
	v.SetDefault("llm.primary.model", "gpt-3.5-turbo")
	v.SetDefault("llm.primary.max_tokens", 2000)
	v.SetDefault("llm.primary.temperature", 0.7)
	v.SetDefault("llm.primary.timeout", 60*time.Second)
	retry := llm.DefaultRetryConfig()
	v.SetDefault("llm.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("llm.retry.base_delay", retry.BaseDelay)
	v.SetDefault("llm.retry.max_delay", retry.MaxDelay)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", "mindwolf.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load 读取配置：默认值 < 配置文件 < MINDWOLF_* 环境变量。
// path 为空时在当前目录和 ./config 下查找 mindwolf.{yaml,json,toml}，找不到不报错。
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mindwolf")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	var sec secrets
	if err := env.Parse(&sec); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applySecrets(sec)
	cfg.inheritFallbacks()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets 环境变量中的密钥覆盖配置文件，备用接口按顺序对应
func (c *Config) applySecrets(sec secrets) {
	if sec.APIKey != "" {
		c.LLM.Primary.APIKey = sec.APIKey
	}
	for i, key := range sec.FallbackKeys {
		if i >= len(c.LLM.Fallbacks) {
			break
		}
		if key = strings.TrimSpace(key); key != "" {
			c.LLM.Fallbacks[i].APIKey = key
		}
	}
}

// inheritFallbacks 备用接口未填写的参数沿用主接口
func (c *Config) inheritFallbacks() {
	for i := range c.LLM.Fallbacks {
		fb := &c.LLM.Fallbacks[i]
		if fb.Name == "" {
			fb.Name = fmt.Sprintf("fallback-%d", i+1)
		}
		if fb.Model == "" {
			fb.Model = c.LLM.Primary.Model
		}
		if fb.MaxTokens == 0 {
			fb.MaxTokens = c.LLM.Primary.MaxTokens
		}
		if fb.Temperature == 0 {
			fb.Temperature = c.LLM.Primary.Temperature
		}
		if fb.Timeout == 0 {
			fb.Timeout = c.LLM.Primary.Timeout
		}
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Game.TotalPlayers < models.MinPlayers {
		return fmt.Errorf("%w: game.total_players 至少为%d", ErrInvalidConfig, models.MinPlayers)
	}
	if c.Game.RoleDistribution != nil {
		sum := 0
		for role, n := range c.Game.RoleDistribution {
			if !role.Valid() {
				return fmt.Errorf("%w: 未知角色 %q", ErrInvalidConfig, role)
			}
			if n < 0 {
				return fmt.Errorf("%w: 角色 %s 数量不能为负", ErrInvalidConfig, role)
			}
			sum += n
		}
		if sum != c.Game.TotalPlayers {
			return fmt.Errorf("%w: 角色总数 %d 与玩家数量 %d 不一致", ErrInvalidConfig, sum, c.Game.TotalPlayers)
		}
	}
	if c.Game.DiscussionTime < 0 || c.Game.VotingTime < 0 || c.Game.NightTime < 0 || c.Game.LastWordsTime < 0 {
		return fmt.Errorf("%w: 阶段时长不能为负", ErrInvalidConfig)
	}
	if c.LLM.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: llm.retry.max_attempts 必须大于0", ErrInvalidConfig)
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("%w: storage.path 不能为空", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// NewLogger 按配置创建日志
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// BuildGenerator 未启用LLM时返回 nil，游戏只使用规则发言
func BuildGenerator(cfg LLMConfig, log logrus.FieldLogger) services.TextGenerator {
	if !cfg.Enabled {
		return nil
	}
	primary := llm.NewClient(cfg.Primary, nil)
	fallbacks := make([]llm.Provider, 0, len(cfg.Fallbacks))
	for _, fb := range cfg.Fallbacks {
		fallbacks = append(fallbacks, llm.NewClient(fb, nil))
	}
	return llm.NewManager(primary, fallbacks, cfg.Retry, log)
}
