package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/image"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// 最大文件大小为5MB
	MAX_FILE_SIZE = 5 * 1024 * 1024

	uploadDir = "uploads"
)

// DefaultUploadService 手动上传分析服务
// 与WebSocket中继走同一条分析流水线，但不受模式开关限制
type DefaultUploadService struct {
	logger  *utils.Logger
	config  *configs.Config
	invoker core.ModelInvoker
	results core.ResultStore // 可为nil
}

// NewDefaultUploadService 构造函数
func NewDefaultUploadService(config *configs.Config, logger *utils.Logger, invoker core.ModelInvoker, results core.ResultStore) *DefaultUploadService {
	return &DefaultUploadService{
		logger:  logger,
		config:  config,
		invoker: invoker,
		results: results,
	}
}

// Start 实现服务接口，注册各模式的上传路由
func (s *DefaultUploadService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	for _, mode := range analysis.AllModes() {
		mode := mode
		path := fmt.Sprintf("/%s/upload", mode)
		apiGroup.POST(path, func(c *gin.Context) { s.handleUpload(c, mode) })
		apiGroup.OPTIONS(path, s.handleOptions)
	}

	s.logger.Info("Upload HTTP服务路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultUploadService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// handleUpload 处理上传的图片并按指定模式分析
func (s *DefaultUploadService) handleUpload(c *gin.Context, mode analysis.Mode) {
	s.addCORSHeaders(c)

	imageData, savedPath, err := s.parseUploadRequest(c)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("上传请求解析失败: %v", err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	base64Image, err := image.Normalize(imageData)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("图片格式转换失败: %v", err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "不支持的文件格式，请上传有效的图片文件"})
		return
	}

	rawText, err := s.invoker.Invoke(c.Request.Context(), base64Image, mode)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("模型调用失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": fmt.Sprintf("分析失败: %v", err)})
		return
	}

	result := analysis.Normalize(rawText, mode)

	if s.results != nil {
		s.results.SaveResultAsync(&store.ResultRecord{
			Source:   "upload",
			ImageURL: savedPath,
			Result:   result,
		})
	}

	s.logger.Info(fmt.Sprintf("上传图片分析完成: mode=%s file=%s", mode, savedPath))
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"file_path":  savedPath,
		"result":     result.Data,
		"confidence": result.Confidence,
	})
}

// parseUploadRequest 解析multipart上传并把图片保存到本地
func (s *DefaultUploadService) parseUploadRequest(c *gin.Context) ([]byte, string, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("缺少图片文件: %v", err)
	}
	defer file.Close()

	if header.Size > MAX_FILE_SIZE {
		return nil, "", fmt.Errorf("图片大小超过限制，最大允许%dMB", MAX_FILE_SIZE/1024/1024)
	}

	imageData, err := io.ReadAll(io.LimitReader(file, MAX_FILE_SIZE+1))
	if err != nil {
		return nil, "", fmt.Errorf("读取图片数据失败: %v", err)
	}
	if len(imageData) == 0 {
		return nil, "", fmt.Errorf("图片数据为空")
	}
	if len(imageData) > MAX_FILE_SIZE {
		return nil, "", fmt.Errorf("图片大小超过限制，最大允许%dMB", MAX_FILE_SIZE/1024/1024)
	}

	savedPath, err := s.saveImageToFile(imageData, header.Filename)
	if err != nil {
		return nil, "", err
	}

	return imageData, savedPath, nil
}

// saveImageToFile 把上传的图片落盘，文件名带时间戳和唯一ID
func (s *DefaultUploadService) saveImageToFile(imageData []byte, originalName string) (string, error) {
	if err := os.MkdirAll(uploadDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("创建uploads目录失败: %v", err)
	}

	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
		filepath.Ext(originalName),
	)
	path := filepath.Join(uploadDir, filename)

	if err := os.WriteFile(path, imageData, 0644); err != nil {
		return "", fmt.Errorf("保存图片文件失败: %v", err)
	}

	return path, nil
}

// addCORSHeaders 添加CORS头
func (s *DefaultUploadService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
}
