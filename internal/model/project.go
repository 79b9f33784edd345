// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// DefaultProjectName 是未指定名称时项目的名称。
const DefaultProjectName = "Unnamed Project"

// Project 对应 projects 表，是检索的隔离边界：每个项目拥有独立的向量集合。
type Project struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:varchar(500)" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Project) TableName() string {
	return "projects"
}
