package model

import (
	"time"

	"lite-rag-go/pkg/chunker"
)

// Chunk 对应 chunks 表，保存切块结果，索引时从这里读取。
// (project_id, asset_id) 内 chunk_order 从 0 连续递增。
type Chunk struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID string         `gorm:"type:varchar(36);not null;index:ix_chunks_project_asset_id,priority:1" json:"project_id"`
	AssetID   string         `gorm:"type:varchar(36);not null;index:ix_chunks_project_asset_id,priority:2" json:"asset_id"`
	FileID    string         `gorm:"type:varchar(255);not null" json:"file_id"`
	Order     int            `gorm:"column:chunk_order;not null" json:"order"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Metadata  map[string]any `gorm:"type:text;serializer:json" json:"metadata"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "chunks"
}

// ToChunker 转换为切块器与向量网关使用的块。
func (c *Chunk) ToChunker() chunker.Chunk {
	return chunker.Chunk{
		ProjectID: c.ProjectID,
		FileID:    c.FileID,
		Order:     c.Order,
		Content:   c.Content,
		Metadata:  c.Metadata,
	}
}

// ChunksFromChunker 把切块结果转换为待写入的记录。
func ChunksFromChunker(projectID, assetID string, chunks []chunker.Chunk) []*Chunk {
	out := make([]*Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = &Chunk{
			ProjectID: projectID,
			AssetID:   assetID,
			FileID:    c.FileID,
			Order:     c.Order,
			Content:   c.Content,
			Metadata:  c.Metadata,
		}
	}
	return out
}
