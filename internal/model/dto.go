package model

import "lite-rag-go/pkg/vectordb"

// CreateProjectRequest 是创建项目的请求体。
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DocumentProcessingRequest 是切分资产的请求体。FileID 为空时处理项目下全部资产。
type DocumentProcessingRequest struct {
	FileID          string `json:"file_id"`
	ChunkSize       int    `json:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap"`
	ReplaceExisting bool   `json:"replace_existing"`
	Index           bool   `json:"index"`
	Async           bool   `json:"async"`
}

// DocumentProcessingResult 汇总一次处理请求的结果。
type DocumentProcessingResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Chunks    int      `json:"chunks"`
	Indexed   int      `json:"indexed"`
	Enqueued  []string `json:"enqueued,omitempty"`
}

// IndexRequest 是把项目块写入向量库的请求体。
type IndexRequest struct {
	Reset bool `json:"do_reset"`
}

// QueryRequest 是相似检索的请求体。
type QueryRequest struct {
	Text      string   `json:"text" binding:"required"`
	TopK      *int     `json:"top_k"`
	Threshold *float64 `json:"threshold"`
}

// QueryResult 是相似检索的响应。
type QueryResult struct {
	Matches []vectordb.Match `json:"matches"`
	Count   int              `json:"count"`
}

// GenerateRequest 是 /rag/generate 的请求体，省略的字段取配置默认值。
type GenerateRequest struct {
	Query           string   `json:"query" binding:"required"`
	TopK            *int     `json:"top_k"`
	Threshold       *float64 `json:"threshold"`
	Temperature     *float64 `json:"temperature"`
	MaxOutputTokens *int     `json:"max_output_tokens"`
	Locale          string   `json:"locale"`
}

// RagRequest 是一次 RAG 问答的输入。
type RagRequest struct {
	ProjectID       string
	Query           string
	TopK            int
	Threshold       *float64
	Temperature     *float64
	MaxOutputTokens *int
	Locale          string
}

// RagResult 是 RAG 问答的结果。Citations 总是 Contexts 的保序子序列。
type RagResult struct {
	Answer    string           `json:"answer"`
	Citations []vectordb.Match `json:"citations"`
	Contexts  []vectordb.Match `json:"contexts"`
}
