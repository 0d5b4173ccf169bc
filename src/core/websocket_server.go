package core

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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketServer 分析中继WebSocket服务器
type WebSocketServer struct {
	config    *configs.Config
	server    *http.Server
	upgrader  Upgrader
	logger    *utils.Logger
	registry  *SessionRegistry
	modeGate  *gate.ModeGate
	fetcher   ImageFetcher
	invoker   ModelInvoker
	results   ResultStore
	authToken *auth.AuthToken
}

// Upgrader WebSocket升级器接口
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error)
}

// Conn WebSocket连接接口
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// NewWebSocketServer 创建新的WebSocket服务器
func NewWebSocketServer(
	config *configs.Config,
	logger *utils.Logger,
	modeGate *gate.ModeGate,
	fetcher ImageFetcher,
	invoker ModelInvoker,
	results ResultStore,
) *WebSocketServer {
	return &WebSocketServer{
		config:    config,
		logger:    logger,
		upgrader:  NewDefaultUpgrader(),
		registry:  NewSessionRegistry(),
		modeGate:  modeGate,
		fetcher:   fetcher,
		invoker:   invoker,
		results:   results,
		authToken: auth.NewAuthToken(config.Server.Token),
	}
}

// Registry 返回会话注册表
func (ws *WebSocketServer) Registry() *SessionRegistry {
	return ws.registry
}

// Start 启动WebSocket服务器
func (ws *WebSocketServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", ws.config.Server.IP, ws.config.Server.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws/", ws.handleWebSocket)

	ws.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ws.logger.Info(fmt.Sprintf("正在启动WebSocket服务器于 ws://%s...", addr))

	// 启动服务器关闭监控
	go func() {
		<-ctx.Done()
		ws.logger.Info("收到关闭信号，准备关闭服务器...")
		if err := ws.Stop(); err != nil {
			ws.logger.Error(fmt.Sprintf("服务器关闭时出错: %v", err))
		}
	}()

	if err := ws.server.ListenAndServe(); err != nil {
		if err == http.ErrServerClosed {
			ws.logger.Info("服务器已正常关闭")
			return nil
		}
		ws.logger.Error(fmt.Sprintf("服务器启动失败: %v", err))
		return fmt.Errorf("服务器启动失败: %v", err)
	}

	return nil
}

// Stop 停止WebSocket服务器
func (ws *WebSocketServer) Stop() error {
	if ws.server != nil {
		ws.logger.Info("正在关闭WebSocket服务器...")

		// 关闭所有活动连接
		ws.registry.CloseAll()

		if err := ws.server.Close(); err != nil {
			return fmt.Errorf("服务器关闭失败: %v", err)
		}
	}
	return nil
}

// handleWebSocket 处理WebSocket连接
// 路由形如 /api/v1/ws/{mode}，mode为translate/calorie/navigate之一
func (ws *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r)
	if err != nil {
		ws.logger.Error(fmt.Sprintf("WebSocket升级失败: %v", err))
		return
	}

	// 从路径解析分析模式
	modeStr := strings.TrimPrefix(r.URL.Path, "/api/v1/ws/")
	mode, ok := analysis.ParseMode(modeStr)
	if !ok {
		ws.logger.Warn(fmt.Sprintf("未知的分析模式: %s", modeStr))
		closeWith(conn, CloseInvalidMode, "Invalid process type")
		return
	}

	// 认证开启时校验token，失败按失败类别关闭
	if ws.config.Server.Auth.Enabled {
		token := r.URL.Query().Get("token")
		valid, subject, verr := ws.authToken.VerifyToken(token)
		if verr != nil || !valid {
			ws.logger.Warn(fmt.Sprintf("WebSocket认证失败: %v", verr))
			closeWith(conn, CloseAuthFailed, "认证失败")
			return
		}
		ws.logger.Debug(fmt.Sprintf("WebSocket认证通过: %s", subject))
	}

	// 客户端可带session_id实现稳定的重连身份，否则分配UUID
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := ws.registry.Register(sessionID, conn)
	ws.logger.Info(fmt.Sprintf("新的WebSocket连接: session=%s mode=%s", sessionID, mode))

	handler := NewConnectionHandler(
		ws.config, ws.logger, ws.modeGate,
		ws.fetcher, ws.invoker, ws.results,
		ws.registry, mode,
	)
	go handler.Handle(session)
}

// closeWith 发送关闭帧后关闭连接
func closeWith(conn Conn, code int, reason string) {
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	conn.Close()
}

// defaultUpgrader 默认的WebSocket升级器实现
type defaultUpgrader struct {
	wsUpgrader *websocket.Upgrader
}

// NewDefaultUpgrader 创建默认的WebSocket升级器
func NewDefaultUpgrader() *defaultUpgrader {
	return &defaultUpgrader{
		wsUpgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的连接
			},
		},
	}
}

// websocketConn 封装gorilla/websocket的连接实现
type websocketConn struct {
	conn *websocket.Conn
}

func (w *websocketConn) ReadMessage() (messageType int, p []byte, err error) {
	return w.conn.ReadMessage()
}

func (w *websocketConn) WriteMessage(messageType int, data []byte) error {
	return w.conn.WriteMessage(messageType, data)
}

func (w *websocketConn) Close() error {
	return w.conn.Close()
}

// Upgrade 实现Upgrader接口
func (u *defaultUpgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	conn, err := u.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}
