package main

import (
	"context"
	"fmt"
	"time"

	"lite-rag-go/internal/config"
	"lite-rag-go/internal/handler"
	"lite-rag-go/internal/pipeline"
	"lite-rag-go/internal/repository"
	"lite-rag-go/internal/service"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/database"
	"lite-rag-go/pkg/embedding"
	"lite-rag-go/pkg/kafka"
	"lite-rag-go/pkg/llm"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/storage"
	"lite-rag-go/pkg/templates"
	"lite-rag-go/pkg/vectordb"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有进程内全部长生命周期的依赖，由 newApp 按配置装配。
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	rdb       *redis.Client
	gateway   *vectordb.Gateway
	producer  *kafka.Producer
	processor *pipeline.Processor
	services  handler.Services
}

// newApp 装配数据库、对象存储、向量网关与各个服务。withLLM 为 false 时不创建生成网关，
// 只做入库与索引的命令不需要 LLM 凭据。
func newApp(ctx context.Context, cfg *config.Config, withLLM bool) (*app, error) {
	a := &app{cfg: cfg}

	// 1. 数据库与 Redis
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := repository.AutoMigrate(db); err != nil {
		a.close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	if a.rdb, err = database.NewRedis(ctx, cfg.Database.Redis); err != nil {
		a.close()
		return nil, err
	}

	// 2. 对象存储
	var store storage.Store
	if cfg.MinIO.Endpoint != "" {
		if store, err = storage.NewMinIO(ctx, cfg.MinIO); err != nil {
			a.close()
			return nil, err
		}
	} else {
		log.Warnf("未配置 minio.endpoint, 资产文本只保存在内存中")
		store = storage.NewMemory()
	}

	// 3. 嵌入与向量网关
	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		a.close()
		return nil, err
	}
	backend, err := vectordb.NewBackend(ctx, cfg.VectorDB)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.gateway, err = vectordb.NewGateway(backend, embedder, cfg.Embedding, cfg.VectorDB); err != nil {
		_ = backend.Close()
		a.close()
		return nil, err
	}

	// 4. Repository 与处理管道
	projectRepo := repository.NewProjectRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	splitter, err := chunker.New(chunker.Unit(cfg.Chunking.Unit), cfg.Chunking.Encoding)
	if err != nil {
		a.close()
		return nil, err
	}
	a.processor = pipeline.NewProcessor(splitter, cfg.Chunking, store, assetRepo, chunkRepo, a.gateway)

	var queue service.TaskQueue
	if cfg.Kafka.Brokers != "" {
		a.producer = kafka.NewProducer(cfg.Kafka)
		queue = a.producer
	}

	// 5. Service
	a.services = handler.Services{
		Projects:  service.NewProjectService(projectRepo, a.gateway, store),
		Assets:    service.NewAssetService(assetRepo, chunkRepo, store, cfg.Server.MaxAssetSize),
		Documents: service.NewDocumentService(assetRepo, a.processor, queue, cfg.Chunking),
		Vectors:   service.NewVectorService(chunkRepo, a.gateway),
	}
	if withLLM {
		llmClient, err := llm.NewClient(cfg.LLM)
		if err != nil {
			a.close()
			return nil, err
		}
		resolver, err := templates.Load(cfg.RAG.TemplatesPath)
		if err != nil {
			a.close()
			return nil, err
		}
		log.Infof("已加载模板 locale: %v", resolver.Locales())
		if a.services.RAG, err = service.NewRAGService(a.gateway, llmClient, resolver, cfg.RAG); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// consumer 返回异步任务消费者，未配置 Kafka 时返回 nil。
func (a *app) consumer() *kafka.Consumer {
	if a.cfg.Kafka.Brokers == "" {
		return nil
	}
	var counter kafka.AttemptCounter
	if a.rdb != nil {
		counter = kafka.NewRedisCounter(a.rdb, 24*time.Hour)
	}
	return kafka.NewConsumer(a.cfg.Kafka, a.processor, counter)
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			log.Errorf("关闭向量网关失败: %v", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
