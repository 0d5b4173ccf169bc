package admin

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/auth"
	"aiglasses-server-go/src/core/gate"
	"aiglasses-server-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

// DefaultAdminService 管理端服务：各模式分析开关的唯一写入口
type DefaultAdminService struct {
	logger    *utils.Logger
	config    *configs.Config
	modeGate  *gate.ModeGate
	authToken *auth.AuthToken
}

// NewDefaultAdminService 构造函数
func NewDefaultAdminService(config *configs.Config, logger *utils.Logger, modeGate *gate.ModeGate) *DefaultAdminService {
	return &DefaultAdminService{
		logger:    logger,
		config:    config,
		modeGate:  modeGate,
		authToken: auth.NewAuthToken(config.Server.Token),
	}
}

// Start 实现服务接口，注册各模式的开关路由
func (s *DefaultAdminService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	for _, mode := range analysis.AllModes() {
		mode := mode
		path := fmt.Sprintf("/%s/messenger", mode)
		apiGroup.POST(path, func(c *gin.Context) { s.handleToggle(c, mode) })
		apiGroup.GET(path, func(c *gin.Context) { s.handleStatus(c, mode) })
		apiGroup.OPTIONS(path, s.handleOptions)
	}

	s.logger.Info("Admin HTTP服务路由注册完成")
	return nil
}

// handleToggle 切换指定模式的Messenger图片分析状态
func (s *DefaultAdminService) handleToggle(c *gin.Context, mode analysis.Mode) {
	s.addCORSHeaders(c)

	if !s.verifyAuth(c) {
		return
	}

	active := s.modeGate.Toggle(mode)
	s.logger.Info(fmt.Sprintf("模式开关已切换: %s -> %t", mode, active))

	if active {
		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"message":      fmt.Sprintf("Messenger %s analysis started", mode),
			"is_active":    true,
			"process_type": mode.String(),
			"result":       fmt.Sprintf("✅ 已开启%s功能\n- 请在 Messenger 页面运行书签脚本\n- 新图片将自动进行分析\n- 再次点击此按钮可停止处理", modeLabel(mode)),
		})
	} else {
		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"message":      fmt.Sprintf("Messenger %s analysis stopped", mode),
			"is_active":    false,
			"process_type": nil,
			"result":       fmt.Sprintf("⏹️ 已停止%s功能\n- 书签脚本将停止处理新图片\n- 再次点击此按钮可重新开启", modeLabel(mode)),
		})
	}
}

// handleStatus 查询指定模式的当前状态
func (s *DefaultAdminService) handleStatus(c *gin.Context, mode analysis.Mode) {
	s.addCORSHeaders(c)
	c.JSON(http.StatusOK, gin.H{
		"process_type": mode.String(),
		"is_active":    s.modeGate.IsActive(mode),
	})
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *DefaultAdminService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// verifyAuth 校验Bearer token，认证未开启时直接放行
func (s *DefaultAdminService) verifyAuth(c *gin.Context) bool {
	if !s.config.Server.Auth.Enabled {
		return true
	}

	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "无效的认证token"})
		return false
	}

	valid, _, err := s.authToken.VerifyToken(authHeader[7:])
	if err != nil || !valid {
		s.logger.Warn(fmt.Sprintf("Admin认证失败: %v", err))
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "无效的认证token或token已过期"})
		return false
	}

	return true
}

// addCORSHeaders 添加CORS头
func (s *DefaultAdminService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// modeLabel 模式的中文说明
func modeLabel(mode analysis.Mode) string {
	switch mode {
	case analysis.ModeTranslate:
		return "图片翻译"
	case analysis.ModeCalorie:
		return "卡路里分析"
	case analysis.ModeNavigate:
		return "导航分析"
	}
	return mode.String()
}
