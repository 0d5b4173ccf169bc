package store

import (
	"context"
	"encoding/json"
	"fmt"

	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/models"
	"aiglasses-server-go/src/task"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskTypeStoreResult 结果入库任务类型
const TaskTypeStoreResult task.TaskType = "store_result"

// ResultRecord 一次分析的落库数据
type ResultRecord struct {
	SessionID string
	UserID    *uint
	Source    string // messenger/upload
	ImageURL  string
	Result    analysis.Result
}

// Store 分析结果持久化层
// 调用方fire-and-forget：入库失败只记录日志，不影响已发出的响应
type Store struct {
	db      *gorm.DB
	logger  *utils.Logger
	taskMgr *task.TaskManager
}

// NewStore 创建持久化层并注册入库任务执行器
func NewStore(db *gorm.DB, logger *utils.Logger, taskMgr *task.TaskManager) *Store {
	s := &Store{
		db:      db,
		logger:  logger,
		taskMgr: taskMgr,
	}

	task.RegisterTaskExecutor(TaskTypeStoreResult, func(t *task.Task) error {
		record, ok := t.Params.(*ResultRecord)
		if !ok {
			return fmt.Errorf("无效的入库任务参数: %T", t.Params)
		}
		if err := s.saveResult(record); err != nil {
			s.logger.Error(fmt.Sprintf("分析结果入库失败: session=%s, %v", record.SessionID, err))
			return err
		}
		return nil
	})

	return s
}

// SaveResultAsync 异步保存分析结果，失败只记录日志
func (s *Store) SaveResultAsync(record *ResultRecord) {
	if s.db == nil {
		return
	}

	// 任务不随连接取消，连接断开后在途结果仍然落库
	t := task.NewTask(context.Background(), TaskTypeStoreResult, record)
	if err := s.taskMgr.SubmitTask(t); err != nil {
		s.logger.Warn(fmt.Sprintf("提交结果入库任务失败: %v", err))
	}
}

// saveResult 写入图片记录及对应模式的分析记录
func (s *Store) saveResult(record *ResultRecord) error {
	image := models.ImageRecord{
		URL:         record.ImageURL,
		Source:      record.Source,
		Status:      "processed",
		ProcessType: record.Result.Mode.String(),
		SessionID:   record.SessionID,
		UserID:      record.UserID,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&image).Error; err != nil {
			return fmt.Errorf("保存图片记录失败: %w", err)
		}

		switch data := record.Result.Data.(type) {
		case analysis.TranslationResult:
			return tx.Create(&models.Translation{
				ImageID:        image.ID,
				OriginalText:   data.OriginalText,
				TranslatedText: data.TranslatedText,
				SourceLanguage: data.SourceLanguage,
				TargetLanguage: data.TargetLanguage,
			}).Error

		case analysis.CalorieResult:
			items, err := toJSON(data.FoodItems)
			if err != nil {
				return err
			}
			return tx.Create(&models.CalorieAnalysis{
				ImageID:         image.ID,
				TotalCalories:   data.TotalCalories,
				FoodItems:       items,
				ConfidenceScore: data.ConfidenceScore,
			}).Error

		case analysis.NavigationResult:
			obstacles, err := toJSON(data.Obstacles)
			if err != nil {
				return err
			}
			safePath, err := toJSON(data.SafePath)
			if err != nil {
				return err
			}
			return tx.Create(&models.NavigationRecord{
				ImageID:      image.ID,
				UserID:       record.UserID,
				Obstacles:    obstacles,
				SafePath:     safePath,
				Distance:     data.Distance,
				WarningLevel: data.WarningLevel,
				IsSafe:       data.WarningLevel == "safe",
			}).Error

		default:
			return fmt.Errorf("未知的结果类型: %T", record.Result.Data)
		}
	})
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化JSON字段失败: %w", err)
	}
	return datatypes.JSON(data), nil
}
