package model

import "time"

// AssetTypeText 是纯文本资产。文本提取在上游完成，这里只保存文本。
const AssetTypeText = "text"

// Asset 对应 assets 表，记录项目中的一个源文档。
// Name 在项目内唯一，同时作为块与向量载荷中的 file_id。
type Asset struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID  string    `gorm:"type:varchar(36);not null;uniqueIndex:ix_assets_project_id_name" json:"project_id"`
	Name       string    `gorm:"type:varchar(255);not null;uniqueIndex:ix_assets_project_id_name" json:"name"`
	Type       string    `gorm:"type:varchar(32);not null" json:"type"`
	Size       int64     `gorm:"not null" json:"size"`
	ObjectName string    `gorm:"type:varchar(512);not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Asset) TableName() string {
	return "assets"
}
