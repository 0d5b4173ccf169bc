package core

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// WebSocket关闭码，按失败类别区分
const (
	CloseInvalidMode   = 4000 // 未知的分析模式
	CloseModeInactive  = 4001 // 连接时模式未激活
	CloseInternalError = 4002 // 服务内部错误
	CloseAuthFailed    = 4003 // 认证失败
)

// ProtocolReason 协议层错误分类
type ProtocolReason string

const (
	ReasonMalformedMessage ProtocolReason = "malformed_message"
	ReasonMissingURL       ProtocolReason = "missing_url"
	ReasonInvalidURL       ProtocolReason = "invalid_url"
	ReasonBusy             ProtocolReason = "busy"
	ReasonModeInactive     ProtocolReason = "mode_inactive"
	ReasonUnknownMode      ProtocolReason = "unknown_mode"
)

// ProtocolError 协议层错误
type ProtocolError struct {
	Reason  ProtocolReason
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("协议错误(%s): %s", e.Reason, e.Message)
}

// 图片定位字段的候选键，按优先级排列，取第一个命中的
var imageKeyPriority = []string{"image_url", "imageUrl", "url", "image"}

// extractImageURL 从入站消息中提取图片URL
// 要求是字符串且为含scheme和host的绝对URL
func extractImageURL(payload []byte) (string, *ProtocolError) {
	var message map[string]interface{}
	if err := json.Unmarshal(payload, &message); err != nil {
		return "", &ProtocolError{
			Reason:  ReasonMalformedMessage,
			Message: "消息不是合法的JSON",
		}
	}

	for _, key := range imageKeyPriority {
		value, exists := message[key]
		if !exists {
			continue
		}

		raw, ok := value.(string)
		if !ok {
			return "", &ProtocolError{
				Reason:  ReasonInvalidURL,
				Message: fmt.Sprintf("字段%s必须是字符串", key),
			}
		}

		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", &ProtocolError{
				Reason:  ReasonInvalidURL,
				Message: "图片URL必须是绝对URL",
			}
		}

		return raw, nil
	}

	return "", &ProtocolError{
		Reason:  ReasonMissingURL,
		Message: "未提供图片URL",
	}
}
