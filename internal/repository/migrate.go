package repository

import (
	"lite-rag-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新 projects、assets、chunks 三张表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Project{}, &model.Asset{}, &model.Chunk{})
}
