package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Session 一条逻辑客户端连接的簿记
// 连接句柄由注册表独占持有，所有写操作都在会话自身的锁下进行
type Session struct {
	ID   string
	conn Conn

	mu         sync.Mutex
	processing bool
	closed     bool
}

// WriteJSON 序列化并发送一条JSON文本帧
func (s *Session) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("会话已关闭: %s", s.ID)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// WriteRaw 发送一条原始帧（用于关闭帧等控制消息）
func (s *Session) WriteRaw(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("会话已关闭: %s", s.ID)
	}
	return s.conn.WriteMessage(messageType, data)
}

// TryBeginProcessing 尝试进入处理状态
// 已在处理中则返回false，同一会话的消息严格串行处理
func (s *Session) TryBeginProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

// EndProcessing 退出处理状态
func (s *Session) EndProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = false
}

// close 关闭底层连接，幂等
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
}

// SessionRegistry 会话注册表：每个会话ID至多一条活跃连接
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry 创建会话注册表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// Register 注册新连接
// 同ID已有连接时先强制关闭旧连接再接受新连接
func (r *SessionRegistry) Register(id string, conn Conn) *Session {
	session := &Session{ID: id, conn: conn}

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = session
	r.mu.Unlock()

	// 旧连接在注册表锁外关闭，不阻塞其他会话的注册
	if old != nil {
		old.close()
	}

	return session
}

// Unregister 注销会话并关闭连接
// 幂等：注销未知或已关闭的会话是空操作
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	session := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if session != nil {
		session.close()
	}
}

// UnregisterSession 注销指定会话实例
// 仅当注册表仍指向该实例时移除条目：同ID重连后，
// 被替换的旧会话清理时不得摘除新连接
func (r *SessionRegistry) UnregisterSession(s *Session) {
	if s == nil {
		return
	}

	r.mu.Lock()
	if r.sessions[s.ID] == s {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()

	s.close()
}

// Get 查询会话
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Count 当前活跃会话数
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll 关闭全部会话（服务器停机时调用）
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
