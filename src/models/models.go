package models

import (
	"time"

	"gorm.io/datatypes"
)

// 用户
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;not null"`
	HashedPassword string `gorm:"not null"`
	DeviceID       string
	FullName       string
	IsActive       bool `gorm:"default:true"`
	IsSuperuser    bool `gorm:"default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// 图片记录（上传或Messenger抓取的图片来源）
type ImageRecord struct {
	ID          uint   `gorm:"primaryKey"`
	URL         string `gorm:"size:255"`
	Source      string `gorm:"size:50"` // messenger/upload
	Status      string `gorm:"size:50"` // pending/processing/processed/failed
	ProcessType string `gorm:"size:50"` // translate/calorie/navigate
	Result      string `gorm:"type:text"`
	UserID      *uint
	SessionID   string `gorm:"size:64;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// 翻译分析结果
type Translation struct {
	ID             uint   `gorm:"primaryKey"`
	ImageID        uint   `gorm:"index"`
	OriginalText   string `gorm:"type:text"`
	TranslatedText string `gorm:"type:text"`
	SourceLanguage string
	TargetLanguage string `gorm:"default:zh"`
	CreatedAt      time.Time
}

// 卡路里分析结果
type CalorieAnalysis struct {
	ID              uint `gorm:"primaryKey"`
	ImageID         uint `gorm:"index"`
	TotalCalories   float64
	FoodItems       datatypes.JSON // 识别出的食物项及其卡路里
	ConfidenceScore float64        // 识别置信度
	CreatedAt       time.Time
}

// 导航分析结果
type NavigationRecord struct {
	ID           uint `gorm:"primaryKey"`
	UserID       *uint
	ImageID      uint           `gorm:"index"`
	Obstacles    datatypes.JSON // 检测到的障碍物信息
	SafePath     datatypes.JSON // 建议的安全路径
	Distance     float64        // 与最近障碍物的距离
	WarningLevel string         // safe/caution/danger
	IsSafe       bool           // warning_level为safe时为真，写入时显式赋值
	CreatedAt    time.Time
}
