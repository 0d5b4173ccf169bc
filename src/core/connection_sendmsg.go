package core

import (
	"fmt"

	"aiglasses-server-go/src/core/analysis"

	"github.com/gorilla/websocket"
)

// sendStatus 下发当前模式开关状态
func (h *ConnectionHandler) sendStatus(active bool) error {
	state := "未激活"
	if active {
		state = "已激活"
	}
	return h.session.WriteJSON(map[string]interface{}{
		"type":    "status",
		"active":  active,
		"message": fmt.Sprintf("%s 功能%s", h.mode, state),
	})
}

// sendProcessing 下发处理中确认
func (h *ConnectionHandler) sendProcessing(message string) error {
	return h.session.WriteJSON(map[string]interface{}{
		"status":  "processing",
		"message": message,
	})
}

// sendSuccess 下发标准化分析结果
func (h *ConnectionHandler) sendSuccess(result analysis.Result) error {
	return h.session.WriteJSON(map[string]interface{}{
		"status":     "success",
		"result":     result.Data,
		"confidence": result.Confidence,
	})
}

// sendError 下发错误信封，会话保持打开
func (h *ConnectionHandler) sendError(message string) {
	if err := h.session.WriteJSON(map[string]interface{}{
		"status":  "error",
		"message": message,
	}); err != nil {
		h.logger.Warn(fmt.Sprintf("发送错误消息失败: %v", err))
	}
}

// sendClose 发送带关闭码的关闭帧
func (h *ConnectionHandler) sendClose(code int, reason string) {
	data := websocket.FormatCloseMessage(code, reason)
	if err := h.session.WriteRaw(websocket.CloseMessage, data); err != nil {
		h.logger.Debug(fmt.Sprintf("发送关闭帧失败: %v", err))
	}
}
