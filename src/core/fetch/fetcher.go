package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/utils"
)

// SourceKind 图片来源类型
type SourceKind string

const (
	SourceURL  SourceKind = "url"  // 远程URL
	SourcePath SourceKind = "path" // 本地文件路径
)

// 伪装成桌面浏览器的请求头，部分图床会拒绝非浏览器UA
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Accept":          "image/webp,image/apng,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://www.facebook.com/",
}

// Fetcher 图片下载器，带重试/退避和可选的代理兜底
type Fetcher struct {
	config configs.FetchConfig
	logger *utils.Logger

	client      *http.Client
	proxyClient *http.Client

	// 退避时间单位，测试时可缩短
	backoffUnit time.Duration
}

// NewFetcher 创建图片下载器
func NewFetcher(config configs.FetchConfig, logger *utils.Logger) *Fetcher {
	f := &Fetcher{
		config:      config,
		logger:      logger,
		client:      newHTTPClient(config, nil),
		backoffUnit: time.Second,
	}

	// 配置了代理时准备兜底客户端，代理不可达只会让兜底请求失败
	if config.ProxyURL != "" {
		if proxyURL, err := url.Parse(config.ProxyURL); err == nil {
			f.proxyClient = newHTTPClient(config, http.ProxyURL(proxyURL))
		} else {
			logger.Warn(fmt.Sprintf("代理地址无效，忽略代理配置: %s", config.ProxyURL))
		}
	}

	return f
}

// newHTTPClient 构建下载用HTTP客户端
// 该集成场景下跳过TLS证书校验（已知风险，图片源证书质量参差不齐）
func newHTTPClient(config configs.FetchConfig, proxy func(*http.Request) (*url.URL, error)) *http.Client {
	return &http.Client{
		Timeout: time.Duration(config.TotalTimeout) * time.Second,
		Transport: &http.Transport{
			Proxy: proxy,
			DialContext: (&net.Dialer{
				Timeout: time.Duration(config.ConnectTimeout) * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
			DisableKeepAlives: true,
		},
	}
}

// Fetch 获取图片原始字节
func (f *Fetcher) Fetch(ctx context.Context, source string, kind SourceKind) ([]byte, error) {
	switch kind {
	case SourcePath:
		return f.fetchLocal(source)
	case SourceURL:
		return f.fetchURL(ctx, source)
	default:
		return nil, &FetchError{Reason: ReasonTransport, Err: fmt.Errorf("不支持的来源类型: %s", kind)}
	}
}

// fetchLocal 读取本地图片文件
func (f *Fetcher) fetchLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{Reason: ReasonNotFound, Err: fmt.Errorf("读取本地文件失败: %w", err)}
	}
	return data, nil
}

// fetchURL 下载远程图片，超时和传输错误按退避策略重试
func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr *FetchError

	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		data, ferr := f.doRequest(ctx, f.client, rawURL)
		if ferr == nil {
			return data, nil
		}
		lastErr = ferr

		// 非2xx状态是确定性失败，不自动重试
		if ferr.Reason == ReasonBadStatus {
			break
		}

		if attempt < f.config.MaxRetries {
			wait := f.backoff(attempt)
			f.logger.Warn(fmt.Sprintf("下载失败(%s)，%v后进行第%d次重试: %s", ferr.Reason, wait, attempt+1, rawURL))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &FetchError{Reason: ReasonTimeout, Err: ctx.Err()}
			}
		}
	}

	// 直连失败后尝试一次代理兜底
	if f.proxyClient != nil {
		f.logger.Info(fmt.Sprintf("直连下载失败，尝试通过代理下载: %s", rawURL))
		if data, ferr := f.doRequest(ctx, f.proxyClient, rawURL); ferr == nil {
			return data, nil
		}
	}

	return nil, lastErr
}

// backoff 第attempt次失败后的等待时间：1s，之后min(attempt*2, 5)s
func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return f.backoffUnit
	}
	seconds := attempt * 2
	if seconds > 5 {
		seconds = 5
	}
	return time.Duration(seconds) * f.backoffUnit
}

// doRequest 执行单次下载请求
func (f *Fetcher) doRequest(ctx context.Context, client *http.Client, rawURL string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonTransport, Err: fmt.Errorf("创建请求失败: %w", err)}
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Reason: ReasonBadStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, resp.Status),
		}
	}

	// 限制读取大小，防止无限下载
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxFileSize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return data, nil
}

// classifyTransportError 区分超时与一般传输错误
func classifyTransportError(err error) *FetchError {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return &FetchError{Reason: ReasonTimeout, Err: err}
	}
	if ctxErr := context.DeadlineExceeded; err == ctxErr {
		return &FetchError{Reason: ReasonTimeout, Err: err}
	}
	// url.Error 包裹的超时
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return &FetchError{Reason: ReasonTimeout, Err: err}
	}
	return &FetchError{Reason: ReasonTransport, Err: err}
}
