// Package llm provides a provider-agnostic gateway for chat/completion models.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/resilience"
)

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 表示一条角色消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段使用配置中的默认值。
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
}

// Provider 是单个后端的调用适配。参数已经过网关校验并填好默认值。
type Provider interface {
	Generate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
	Name() string
}

// Factory 根据配置创建一个 Provider。
type Factory func(cfg config.LLMConfig) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册一个生成供应商工厂。
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Providers 列出所有已注册的供应商名称。
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client 是编排器依赖的生成接口。
type Client interface {
	Generate(ctx context.Context, messages []Message, params *GenerationParams) (string, error)
}

// Gateway 在 Provider 之上统一做参数校验、输入截断、超时、重试与错误映射。
type Gateway struct {
	provider           Provider
	defaultTemperature float64
	defaultMaxTokens   int
	maxInputChars      int
	timeout            time.Duration
	retry              resilience.RetryConfig
}

// NewClient 按配置中的 provider 名称创建网关，启动时调用一次。
func NewClient(cfg config.LLMConfig) (*Gateway, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	log.Infof("[LLMGateway] 使用供应商 %s, model: %s", p.Name(), cfg.Model)
	return NewGateway(p, cfg), nil
}

// NewGateway 用给定的 Provider 创建网关。
func NewGateway(p Provider, cfg config.LLMConfig) *Gateway {
	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	return &Gateway{
		provider:           p,
		defaultTemperature: cfg.Generation.Temperature,
		defaultMaxTokens:   cfg.Generation.MaxTokens,
		maxInputChars:      cfg.InputMaxCharacters,
		timeout:            cfg.Timeout,
		retry:              retry,
	}
}

// Generate 调用后端生成一条回答。消息顺序保持不变；超出字符预算的内容在调用前截断。
// 参数非法返回 InvalidParameter，其余任何失败（含超时）都映射为 GenerationFailed。
func (g *Gateway) Generate(ctx context.Context, messages []Message, params *GenerationParams) (string, error) {
	if len(messages) == 0 {
		return "", errs.InvalidParameter("llm.Generate", "messages 不能为空")
	}

	temperature := g.defaultTemperature
	maxTokens := g.defaultMaxTokens
	if params != nil {
		if params.Temperature != nil {
			temperature = *params.Temperature
		}
		if params.MaxTokens != nil {
			if *params.MaxTokens <= 0 {
				return "", errs.InvalidParameter("llm.Generate", "max_output_tokens 必须为正整数, 当前为 %d", *params.MaxTokens)
			}
			maxTokens = *params.MaxTokens
		}
	}
	if temperature < 0 || temperature > 2 {
		return "", errs.InvalidParameter("llm.Generate", "temperature 必须在 [0, 2] 内, 当前为 %v", temperature)
	}

	prepared := make([]Message, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return "", errs.InvalidParameter("llm.Generate", "非法的消息角色 %q", m.Role)
		}
		prepared[i] = Message{Role: m.Role, Content: Truncate(m.Content, g.maxInputChars)}
	}

	var answer string
	err := resilience.Do(ctx, g.retry, g.timeout, func(ctx context.Context) error {
		out, err := g.provider.Generate(ctx, prepared, temperature, maxTokens)
		if err != nil {
			return err
		}
		if out == "" {
			return fmt.Errorf("malformed response: empty completion")
		}
		answer = out
		return nil
	})
	if err != nil {
		log.Errorf("[LLMGateway] %s 生成失败: %v", g.provider.Name(), err)
		return "", errs.Wrap(errs.KindGenerationFailed, "llm.Generate", err)
	}
	return answer, nil
}

// Truncate 将文本截断到 maxChars 个字符（按码点计）。maxChars<=0 表示不限制。
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
