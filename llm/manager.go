package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrAllProvidersFailed 主接口重试用尽且所有备用接口都失败
var ErrAllProvidersFailed = errors.New("所有LLM API都失败了")

// RetryConfig 主接口的重试策略
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DefaultRetryConfig 最多3次，1秒起步，上限30秒
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff 第 attempt 次失败后的等待时间：base * 2^(attempt-1)，不超过 max
func (r RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.MaxDelay > 0 && delay >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Manager 主接口指数退避重试，然后依次尝试备用接口，第一个成功的结果返回
type Manager struct {
	primary   Provider
	fallbacks []Provider
	retry     RetryConfig
	sleep     func(ctx context.Context, d time.Duration) error
	log       logrus.FieldLogger
}

// NewManager 创建管理器
func NewManager(primary Provider, fallbacks []Provider, retry RetryConfig, log logrus.FieldLogger) *Manager {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Manager{
		primary:   primary,
		fallbacks: fallbacks,
		retry:     retry,
		sleep:     sleepContext,
		log:       log,
	}
}

// Generate 实现 services.TextGenerator
func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if m.primary == nil && len(m.fallbacks) == 0 {
		return "", ErrNoProvider
	}

	var lastErr error
	if m.primary != nil {
		for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
			text, err := m.primary.Generate(ctx, prompt)
			if err == nil {
				return text, nil
			}
			lastErr = err
			m.log.WithFields(logrus.Fields{"endpoint": m.primary.Name(), "attempt": attempt}).
				Warnf("[LLM] 主接口调用失败: %v", err)

			if attempt == m.retry.MaxAttempts {
				break
			}
			if err := m.sleep(ctx, m.retry.Backoff(attempt)); err != nil {
				return "", err
			}
		}
	}

	for _, fallback := range m.fallbacks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := fallback.Generate(ctx, prompt)
		if err == nil {
			m.log.WithField("endpoint", fallback.Name()).Infof("[LLM] 备用接口调用成功")
			return text, nil
		}
		lastErr = err
		m.log.WithField("endpoint", fallback.Name()).Warnf("[LLM] 备用接口调用失败: %v", err)
	}

	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
