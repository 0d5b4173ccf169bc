package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"aiglasses-server-go/src/api/admin"
	"aiglasses-server-go/src/api/upload"
	"aiglasses-server-go/src/api/user"
	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/configs/database"
	"aiglasses-server-go/src/core"
	"aiglasses-server-go/src/core/fetch"
	"aiglasses-server-go/src/core/gate"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/core/vlllm"
	"aiglasses-server-go/src/models"
	"aiglasses-server-go/src/store"
	"aiglasses-server-go/src/task"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// buildVLLMProvider 根据selected_module选择视觉模型配置
func buildVLLMProvider(config *configs.Config, logger *utils.Logger) (*vlllm.Provider, error) {
	name := config.SelectedModule["VLLLM"]
	if name == "" {
		return nil, fmt.Errorf("selected_module中未配置VLLLM")
	}
	vcfg, ok := config.VLLLM[name]
	if !ok {
		return nil, fmt.Errorf("VLLLM配置不存在: %s", name)
	}
	return vlllm.NewProvider(&vcfg, logger)
}

func StartWSServer(
	config *configs.Config,
	logger *utils.Logger,
	modeGate *gate.ModeGate,
	fetcher core.ImageFetcher,
	invoker core.ModelInvoker,
	results core.ResultStore,
	g *errgroup.Group,
	groupCtx context.Context,
) (*core.WebSocketServer, error) {
	// 创建 WebSocket 服务
	wsServer := core.NewWebSocketServer(config, logger, modeGate, fetcher, invoker, results)

	// 启动 WebSocket 服务
	g.Go(func() error {
		// 监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭WebSocket服务...")
			if err := wsServer.Stop(); err != nil {
				logger.Error(fmt.Sprintf("WebSocket服务关闭失败: %v", err))
			} else {
				logger.Info("WebSocket服务已优雅关闭")
			}
		}()

		if err := wsServer.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil // 正常关闭
			}
			logger.Error(fmt.Sprintf("WebSocket 服务运行失败: %v", err))
			return err
		}
		return nil
	})

	logger.Info("WebSocket 服务已成功启动")
	return wsServer, nil
}

func StartHttpServer(
	config *configs.Config,
	logger *utils.Logger,
	db *gorm.DB,
	modeGate *gate.ModeGate,
	invoker core.ModelInvoker,
	results core.ResultStore,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api/v1前缀下
	apiGroup := router.Group("/api/v1")

	// 启动模式开关服务
	adminService := admin.NewDefaultAdminService(config, logger, modeGate)
	if err := adminService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("Admin 服务启动失败: %v", err))
		return nil, err
	}

	// 启动图片上传分析服务
	uploadService := upload.NewDefaultUploadService(config, logger, invoker, results)
	if err := uploadService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("Upload 服务启动失败: %v", err))
		return nil, err
	}

	// 启动用户认证服务
	userService := user.NewDefaultUserService(config, logger, db)
	if err := userService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error(fmt.Sprintf("User 服务启动失败: %v", err))
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://0.0.0.0:%d", config.Web.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error(fmt.Sprintf("HTTP服务关闭失败: %v", err))
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("HTTP 服务启动失败: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group, taskMgr *task.TaskManager) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		taskMgr.Stop()
		if err != nil {
			logger.Error(fmt.Sprintf("服务关闭过程中出现错误: %v", err))
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}

	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	// 初始化数据库连接
	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Error(fmt.Sprintf("数据库连接失败: %v", err))
		os.Exit(1)
	}
	logger.Info(fmt.Sprintf("数据库连接成功, 类型: %s", dbType))

	// 自动迁移数据表
	if err := db.AutoMigrate(
		&models.User{},
		&models.ImageRecord{},
		&models.Translation{},
		&models.CalorieAnalysis{},
		&models.NavigationRecord{},
	); err != nil {
		logger.Error(fmt.Sprintf("数据表迁移失败: %v", err))
		os.Exit(1)
	}

	// 初始化核心组件
	modeGate := gate.NewModeGate()
	fetcher := fetch.NewFetcher(config.Fetch, logger)

	invoker, err := buildVLLMProvider(config, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("视觉模型初始化失败: %v", err))
		os.Exit(1)
	}

	// 初始化任务系统与异步存储
	taskMgr := task.NewTaskManager(task.ResourceConfig{})
	taskMgr.Start()
	resultStore := store.NewStore(db, logger, taskMgr)

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 用 errgroup 管理两个服务
	g, groupCtx := errgroup.WithContext(ctx)

	// 启动 WebSocket 服务
	if _, err := StartWSServer(config, logger, modeGate, fetcher, invoker, resultStore, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动 WebSocket 服务失败: %v", err))
		cancel()
		os.Exit(1)
	}

	// 启动 Http 服务
	if _, err := StartHttpServer(config, logger, db, modeGate, invoker, resultStore, g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动 Http 服务失败: %v", err))
		cancel()
		os.Exit(1)
	}

	// 启动优雅关机处理
	GracefulShutdown(cancel, logger, g, taskMgr)

	logger.Info("程序已成功退出")
}
