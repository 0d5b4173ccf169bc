package core

import (
	"context"
	"fmt"
	"sync"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/fetch"
	"aiglasses-server-go/src/core/gate"
	"aiglasses-server-go/src/core/image"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/store"
)

// ImageFetcher 图片获取接口
type ImageFetcher interface {
	Fetch(ctx context.Context, source string, kind fetch.SourceKind) ([]byte, error)
}

// ModelInvoker 视觉模型调用接口
type ModelInvoker interface {
	Invoke(ctx context.Context, base64Image string, mode analysis.Mode) (string, error)
}

// ResultStore 结果持久化接口（fire-and-forget）
type ResultStore interface {
	SaveResultAsync(record *store.ResultRecord)
}

// ConnectionHandler 单条会话的中继处理器
// 同一会话的消息严格串行：处理期间到达的消息立即收到busy错误，从不排队
type ConnectionHandler struct {
	config   *configs.Config
	logger   *utils.Logger
	modeGate *gate.ModeGate
	fetcher  ImageFetcher
	invoker  ModelInvoker
	results  ResultStore // 可为nil（未配置数据库）
	registry *SessionRegistry

	mode    analysis.Mode
	session *Session

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnectionHandler 创建连接处理器
func NewConnectionHandler(
	config *configs.Config,
	logger *utils.Logger,
	modeGate *gate.ModeGate,
	fetcher ImageFetcher,
	invoker ModelInvoker,
	results ResultStore,
	registry *SessionRegistry,
	mode analysis.Mode,
) *ConnectionHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionHandler{
		config:   config,
		logger:   logger,
		modeGate: modeGate,
		fetcher:  fetcher,
		invoker:  invoker,
		results:  results,
		registry: registry,
		mode:     mode,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle 处理一条已注册的WebSocket会话
func (h *ConnectionHandler) Handle(session *Session) {
	h.session = session
	defer h.Close()

	// 连接建立后立即下发当前模式开关状态
	active := h.modeGate.IsActive(h.mode)
	if err := h.sendStatus(active); err != nil {
		h.logger.Error(fmt.Sprintf("发送状态消息失败: %v", err))
		return
	}

	// 连接时模式未激活：下发状态后按失败类别关闭
	// （中途停用则保持连接，仅拒绝后续消息）
	if !active {
		h.logger.Info(fmt.Sprintf("模式未激活，关闭连接: session=%s mode=%s", session.ID, h.mode))
		h.sendClose(CloseModeInactive, fmt.Sprintf("%s 功能未激活", h.mode))
		return
	}

	// 主消息循环
	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			h.logger.Info(fmt.Sprintf("会话读取结束: session=%s, %v", session.ID, err))
			return
		}

		h.handleRelayMessage(payload)
	}
}

// handleRelayMessage 处理一条入站消息
// 各阶段的异常都转成error信封返回，不会终止会话
func (h *ConnectionHandler) handleRelayMessage(payload []byte) {
	imageURL, perr := extractImageURL(payload)
	if perr != nil {
		h.sendError(perr.Message)
		return
	}

	// 每条消息都重新校验开关，模式可能已被中途停用
	if !h.modeGate.IsActive(h.mode) {
		h.sendError(fmt.Sprintf("%s 功能未激活", h.mode))
		return
	}

	// 处理期间到达的消息立即拒绝，不排队
	if !h.session.TryBeginProcessing() {
		h.sendError("busy: 上一张图片仍在处理中")
		return
	}

	if err := h.sendProcessing("图片已接收，正在分析"); err != nil {
		h.logger.Warn(fmt.Sprintf("发送处理中消息失败: %v", err))
	}

	// 异步执行分析流水线，主循环继续收消息以便返回busy
	go h.process(imageURL)
}

// process 执行 下载→规范化→模型调用→结果标准化 流水线
func (h *ConnectionHandler) process(imageURL string) {
	defer h.session.EndProcessing()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error(fmt.Sprintf("分析流水线panic: %v", r))
			h.sendError("内部错误")
		}
	}()

	rawBytes, err := h.fetcher.Fetch(h.ctx, imageURL, fetch.SourceURL)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("图片下载失败: %v", err))
		h.sendError(fmt.Sprintf("图片下载失败: %v", err))
		return
	}

	base64Image, err := image.Normalize(rawBytes)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("图片格式转换失败: %v", err))
		h.sendError(fmt.Sprintf("图片格式转换失败: %v", err))
		return
	}

	rawText, err := h.invoker.Invoke(h.ctx, base64Image, h.mode)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("模型调用失败: %v", err))
		h.sendError(fmt.Sprintf("分析失败: %v", err))
		return
	}

	// 标准化永不失败，解析不了就退化为默认结构
	result := analysis.Normalize(rawText, h.mode)

	if err := h.sendSuccess(result); err != nil {
		// 连接可能已关闭，结果静默丢弃
		h.logger.Info(fmt.Sprintf("发送分析结果失败: session=%s, %v", h.session.ID, err))
		return
	}

	// 入库失败不影响已发出的响应
	if h.results != nil {
		h.results.SaveResultAsync(&store.ResultRecord{
			SessionID: h.session.ID,
			Source:    "messenger",
			ImageURL:  imageURL,
			Result:    result,
		})
	}
}

// Close 结束会话并释放注册表条目，幂等
func (h *ConnectionHandler) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		// 按会话实例注销：重连后旧handler的清理不影响新连接
		h.registry.UnregisterSession(h.session)
	})
}
