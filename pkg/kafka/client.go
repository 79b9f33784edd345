// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisCounter 用 Redis INCR 计数，键在 ttl 后过期。
type RedisCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCounter 创建基于 Redis 的失败计数器。
func NewRedisCounter(rdb *redis.Client, ttl time.Duration) *RedisCounter {
	return &RedisCounter{rdb: rdb, ttl: ttl}
}

func attemptsKey(key string) string {
	return "kafka:attempts:" + key
}

func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, attemptsKey(key)).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, attemptsKey(key), c.ttl).Err()
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, attemptsKey(key)).Err()
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 把文档处理任务发送到 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个文档处理任务到 Kafka。同一资产的任务使用相同的 key，保证顺序处理。
func (p *Producer) Enqueue(ctx context.Context, task tasks.DocumentProcessingTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费文档处理任务。失败的任务不提交 offset 以便重投，达到 maxAttempts 后提交并放弃。
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	counter     AttemptCounter
	maxAttempts int64
}

// NewConsumer 创建消费者。counter 为 nil 时失败任务直接提交，不做重试。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	maxAttempts := int64(cfg.MaxAttempts)
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{reader: r, processor: processor, counter: counter, maxAttempts: maxAttempts}
}

// Run 循环拉取消息，直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		if handle(ctx, c.processor, c.counter, c.maxAttempts, m.Value) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
	if err := c.reader.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// handle 处理一条消息并返回是否应提交 offset。
func handle(ctx context.Context, processor TaskProcessor, counter AttemptCounter, maxAttempts int64, value []byte) bool {
	var task tasks.DocumentProcessingTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理文档任务: project=%s, file=%s", task.ProjectID, task.FileID)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理文档任务失败: project=%s, file=%s, Error: %v", task.ProjectID, task.FileID, err)
		if counter == nil {
			return true
		}
		attempts, incErr := counter.Incr(ctx, task.Key())
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			log.Warnf("记录失败次数出错: %v", incErr)
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("文档任务多次失败(>=%d)，提交 offset 终止重试: %s", maxAttempts, task.Key())
			return true
		}
		return false
	}

	log.Infof("文档任务处理成功: %s", task.Key())
	if counter != nil {
		_ = counter.Reset(ctx, task.Key())
	}
	return true
}
