package fetch

import "fmt"

// FailReason 下载失败原因分类
type FailReason string

const (
	ReasonNotFound  FailReason = "not_found" // 本地文件缺失或不可读
	ReasonTimeout   FailReason = "timeout"   // 连接或读取超时
	ReasonTransport FailReason = "transport" // 网络传输错误
	ReasonBadStatus FailReason = "bad_status" // 非2xx HTTP状态
)

// FetchError 带分类的下载错误
type FetchError struct {
	Reason FailReason
	Status int // BadStatus时的HTTP状态码
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("图片获取失败(%s, status=%d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("图片获取失败(%s): %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
