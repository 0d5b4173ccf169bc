package gate

import (
	"sync"

	"aiglasses-server-go/src/core/analysis"
)

// ModeGate 进程级的分析模式开关
// 进程启动时所有模式关闭，重启即复位（有意不持久化）
// 作为显式组件注入到各处使用，而不是包级全局变量
type ModeGate struct {
	mu     sync.RWMutex
	active map[analysis.Mode]bool
}

// NewModeGate 创建模式开关，所有模式初始为关闭
func NewModeGate() *ModeGate {
	active := make(map[analysis.Mode]bool, len(analysis.AllModes()))
	for _, mode := range analysis.AllModes() {
		active[mode] = false
	}
	return &ModeGate{active: active}
}

// Toggle 翻转指定模式的开关，返回新状态
// 这是唯一的写入口，由管理端接口调用
func (g *ModeGate) Toggle(mode analysis.Mode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[mode] = !g.active[mode]
	return g.active[mode]
}

// IsActive 查询指定模式是否开启
func (g *ModeGate) IsActive(mode analysis.Mode) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active[mode]
}

// Snapshot 返回全部模式的当前状态
func (g *ModeGate) Snapshot() map[analysis.Mode]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snapshot := make(map[analysis.Mode]bool, len(g.active))
	for mode, active := range g.active {
		snapshot[mode] = active
	}
	return snapshot
}
