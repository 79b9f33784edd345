// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 进程启动时构造一次，以指针形式传给各个网关与服务。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	LLM       LLMConfig       `mapstructure:"llm"`
	RAG       RAGConfig       `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	MaxAssetSize int64  `mapstructure:"max_asset_size"` // 单个资产的字节上限
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"` // mysql | sqlite
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储 SQLite 数据库的配置，主要用于本地开发。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时文档处理走同步路径。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ChunkingConfig 存储默认的切块参数。
type ChunkingConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	Unit         string `mapstructure:"unit"`     // rune | token
	Encoding     string `mapstructure:"encoding"` // token 模式下的 tiktoken 编码
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai | cohere | hashing
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Workers    int           `mapstructure:"workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// VectorDBConfig 存储向量库相关的配置。
type VectorDBConfig struct {
	Provider       string              `mapstructure:"provider"` // memory | elasticsearch | milvus | qdrant | pgvector
	DistanceMetric string              `mapstructure:"distance_metric"`
	Timeout        time.Duration       `mapstructure:"timeout"`
	MaxRetries     int                 `mapstructure:"max_retries"`
	Elasticsearch  ElasticsearchConfig `mapstructure:"elasticsearch"`
	Milvus         MilvusConfig        `mapstructure:"milvus"`
	Qdrant         QdrantConfig        `mapstructure:"qdrant"`
	PGVector       PGVectorConfig      `mapstructure:"pgvector"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// MilvusConfig 存储 Milvus 相关的配置。
type MilvusConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// QdrantConfig 存储 Qdrant REST 接口的配置。
type QdrantConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// PGVectorConfig 存储 Postgres + pgvector 的连接串。
type PGVectorConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider           string              `mapstructure:"provider"` // openai | cohere
	APIKey             string              `mapstructure:"api_key"`
	BaseURL            string              `mapstructure:"base_url"`
	Model              string              `mapstructure:"model"`
	Generation         LLMGenerationConfig `mapstructure:"generation"`
	InputMaxCharacters int                 `mapstructure:"input_max_characters"`
	Timeout            time.Duration       `mapstructure:"timeout"`
	MaxRetries         int                 `mapstructure:"max_retries"`
}

// LLMGenerationConfig 配置生成相关的默认参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RAGConfig 配置编排器的默认值。
type RAGConfig struct {
	DefaultLocale string `mapstructure:"default_locale"`
	TemplatesPath string `mapstructure:"templates_path"` // 为空时只使用内置模板
	CitationMode  string `mapstructure:"citation_mode"`  // all | referenced
	TopK          int    `mapstructure:"top_k"`
}

// Load 从指定路径读取 YAML 配置文件，叠加 RAG_ 前缀的环境变量并完成校验。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvs(v, reflect.TypeOf(Config{}), ""); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindEnvs 为结构体中的每个键注册环境变量。
// AutomaticEnv 只作用于 viper 已知的键，没有默认值且未出现在文件里的键（如 api_key）需要显式绑定。
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			if err := bindEnvs(v, f.Type, key); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

// Default 返回只包含默认值的配置，主要供测试使用。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_asset_size", 10<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "lite-rag.db")
	v.SetDefault("kafka.topic", "document-processing")
	v.SetDefault("kafka.group_id", "lite-rag-go-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("minio.bucket_name", "lite-rag-assets")

	v.SetDefault("chunking.chunk_size", 500)
	v.SetDefault("chunking.chunk_overlap", 50)
	v.SetDefault("chunking.unit", "rune")
	v.SetDefault("chunking.encoding", "cl100k_base")

	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 3)

	v.SetDefault("vectordb.provider", "memory")
	v.SetDefault("vectordb.distance_metric", "cosine")
	v.SetDefault("vectordb.timeout", 15*time.Second)
	v.SetDefault("vectordb.max_retries", 2)
	v.SetDefault("vectordb.qdrant.url", "http://localhost:6333")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0.15)
	v.SetDefault("llm.generation.max_tokens", 1024)
	v.SetDefault("llm.input_max_characters", 3000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("rag.default_locale", "en")
	v.SetDefault("rag.citation_mode", "all")
	v.SetDefault("rag.top_k", 5)
}

// Validate 检查配置中彼此相关的取值。
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size 必须为正数, 当前为 %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap 必须在 [0, chunk_size) 内, 当前为 %d", c.Chunking.ChunkOverlap)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions 必须为正数, 当前为 %d", c.Embedding.Dimensions)
	}
	switch c.VectorDB.DistanceMetric {
	case "cosine", "dot", "euclidean", "manhattan":
	default:
		return fmt.Errorf("未知的 vectordb.distance_metric: %q", c.VectorDB.DistanceMetric)
	}
	switch c.RAG.CitationMode {
	case "all", "referenced":
	default:
		return fmt.Errorf("未知的 rag.citation_mode: %q", c.RAG.CitationMode)
	}
	if c.LLM.Generation.Temperature < 0 || c.LLM.Generation.Temperature > 2 {
		return fmt.Errorf("llm.generation.temperature 必须在 [0, 2] 内, 当前为 %v", c.LLM.Generation.Temperature)
	}
	return nil
}
