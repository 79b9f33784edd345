// Package embedding provides a provider-agnostic client for embedding models.
package embedding

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

// InputType 区分被嵌入文本的用途，部分供应商会据此选择不同的向量空间。
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// Client defines the interface for an embedding client.
type Client interface {
	// Embed 按输入顺序返回每段文本的向量。
	Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
	// Dimension 返回向量维度。
	Dimension() int
	// Name 返回供应商名称。
	Name() string
}

// Factory 根据配置创建一个供应商实例。
type Factory func(cfg config.EmbeddingConfig) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册一个 Embedding 供应商工厂。
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

// NewClient creates a new embedding client based on the provider in the config.
// 返回的 Client 带有超时与暂时性错误重试，所有失败都映射为 ProviderError。
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	inner, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	log.Infof("[EmbeddingClient] 使用供应商 %s, model: %s, 维度: %d", inner.Name(), cfg.Model, inner.Dimension())
	return &guarded{inner: inner, retry: retry, timeout: cfg.Timeout}, nil
}

// guarded 为供应商调用加上超时、重试和统一的错误类别。
type guarded struct {
	inner   Client
	retry   resilience.RetryConfig
	timeout time.Duration
}

func (g *guarded) Name() string   { return g.inner.Name() }
func (g *guarded) Dimension() int { return g.inner.Dimension() }

func (g *guarded) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := resilience.Do(ctx, g.retry, g.timeout, func(ctx context.Context) error {
		out, err := g.inner.Embed(ctx, texts, inputType)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 %s 失败, 文本数: %d, error: %v", g.inner.Name(), len(texts), err)
		return nil, errs.Wrap(errs.KindProviderError, "embedding.Embed", err)
	}
	if err := checkShape(vectors, len(texts), g.inner.Dimension()); err != nil {
		return nil, errs.Wrap(errs.KindProviderError, "embedding.Embed", err)
	}
	return vectors, nil
}

// checkShape 校验返回的向量数量与维度。
func checkShape(vectors [][]float32, n, dim int) error {
	if len(vectors) != n {
		return fmt.Errorf("expected %d embeddings, got %d", n, len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}
