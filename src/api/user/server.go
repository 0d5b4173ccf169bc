package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/auth"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// token有效期7天
const tokenExpire = 7 * 24 * time.Hour

// DefaultUserService 用户注册/登录服务，为客户端签发JWT
type DefaultUserService struct {
	logger    *utils.Logger
	config    *configs.Config
	db        *gorm.DB
	authToken *auth.AuthToken
}

// registerRequest 注册请求体
type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
	DeviceID string `json:"device_id"`
}

// loginRequest 登录请求体
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// NewDefaultUserService 构造函数
func NewDefaultUserService(config *configs.Config, logger *utils.Logger, db *gorm.DB) *DefaultUserService {
	return &DefaultUserService{
		logger:    logger,
		config:    config,
		db:        db,
		authToken: auth.NewAuthToken(config.Server.Token),
	}
}

// Start 实现服务接口，注册认证相关路由
func (s *DefaultUserService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.POST("/auth/register", s.handleRegister)
	apiGroup.POST("/auth/login", s.handleLogin)

	s.logger.Info("User HTTP服务路由注册完成")
	return nil
}

// handleRegister 注册新用户
func (s *DefaultUserService) handleRegister(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "数据库未配置"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "请求参数无效: " + err.Error()})
		return
	}

	// 检查邮箱是否已注册
	var existing models.User
	err := s.db.Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "邮箱已注册"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error(fmt.Sprintf("查询用户失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "内部错误"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error(fmt.Sprintf("密码加密失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "内部错误"})
		return
	}

	user := models.User{
		Email:          req.Email,
		HashedPassword: string(hashed),
		FullName:       req.FullName,
		DeviceID:       req.DeviceID,
		IsActive:       true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		s.logger.Error(fmt.Sprintf("创建用户失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "创建用户失败"})
		return
	}

	s.logger.Info(fmt.Sprintf("新用户注册成功: %s", req.Email))
	c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": user.ID, "email": user.Email})
}

// handleLogin 登录并签发token
func (s *DefaultUserService) handleLogin(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "数据库未配置"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "请求参数无效: " + err.Error()})
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "邮箱或密码错误"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "邮箱或密码错误"})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "账号已停用"})
		return
	}

	token, err := s.authToken.GenerateToken(user.Email, tokenExpire)
	if err != nil {
		s.logger.Error(fmt.Sprintf("签发token失败: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}
