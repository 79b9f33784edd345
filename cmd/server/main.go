// Package main 是应用程序的入口点。
package main

import (
	"os"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/log"

	"github.com/spf13/cobra"

	// 向 vectordb 注册全部后端
	_ "lite-rag-go/pkg/vectordb/es"
	_ "lite-rag-go/pkg/vectordb/milvus"
	_ "lite-rag-go/pkg/vectordb/pgvec"
	_ "lite-rag-go/pkg/vectordb/qdrant"
)

var configPath string

// version 在构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "lite-rag",
	Version: version,
	Short:   "Retrieval-augmented generation over per-project document collections",
	Long: `lite-rag splits plain-text assets into overlapping chunks, indexes them
in a vector store, and answers questions with a language model grounded on
the retrieved chunks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to the YAML config file")
}

// loadConfig 读取配置并初始化日志，每个子命令开始时调用一次。
func loadConfig() (*config.Config, error) {
	path := configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// 没有配置文件时只使用默认值与环境变量
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	if path == "" {
		log.Warnf("配置文件 %s 不存在, 使用默认配置", configPath)
	}
	return cfg, nil
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
