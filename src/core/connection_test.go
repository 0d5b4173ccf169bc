package core

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/fetch"
	"aiglasses-server-go/src/core/gate"
	"aiglasses-server-go/src/core/utils"
	"aiglasses-server-go/src/store"

	"github.com/gorilla/websocket"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	config.Log.LogLevel = "info"

	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("创建测试日志器失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

// testPNG 生成一张可解码的小图
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码测试图片失败: %v", err)
	}
	return buf.Bytes()
}

// fakeFetcher 可阻塞的图片获取桩
type fakeFetcher struct {
	mu      sync.Mutex
	data    []byte
	err     error
	calls   int
	blockCh chan struct{} // 非nil时Fetch阻塞直到通道关闭
}

func (f *fakeFetcher) Fetch(ctx context.Context, source string, kind fetch.SourceKind) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	block := f.blockCh
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeInvoker 返回固定文本的模型桩
type fakeInvoker struct {
	response string
	err      error
}

func (i *fakeInvoker) Invoke(ctx context.Context, base64Image string, mode analysis.Mode) (string, error) {
	return i.response, i.err
}

// fakeStore 记录持久化调用
type fakeStore struct {
	mu      sync.Mutex
	records []*store.ResultRecord
}

func (s *fakeStore) SaveResultAsync(record *store.ResultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *fakeStore) saved() []*store.ResultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*store.ResultRecord(nil), s.records...)
}

type handlerEnv struct {
	registry *SessionRegistry
	gate     *gate.ModeGate
	fetcher  *fakeFetcher
	invoker  *fakeInvoker
	store    *fakeStore
	handler  *ConnectionHandler
	conn     *fakeConn
	session  *Session
}

func newHandlerEnv(t *testing.T, mode analysis.Mode) *handlerEnv {
	t.Helper()
	env := &handlerEnv{
		registry: NewSessionRegistry(),
		gate:     gate.NewModeGate(),
		fetcher:  &fakeFetcher{data: testPNG(t)},
		invoker:  &fakeInvoker{response: "{}"},
		store:    &fakeStore{},
		conn:     newFakeConn(),
	}
	env.session = env.registry.Register("glasses-001", env.conn)
	env.handler = NewConnectionHandler(
		&configs.Config{}, newTestLogger(t), env.gate,
		env.fetcher, env.invoker, env.store, env.registry, mode,
	)
	return env
}

// waitFrames 等待连接上出现至少n个帧
func waitFrames(t *testing.T, conn *fakeConn, n int) []fakeFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		frames := conn.writtenFrames()
		if len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待第%d个帧超时, 实际收到%d个", n, len(conn.writtenFrames()))
	return nil
}

func decodeFrame(t *testing.T, frame fakeFrame) map[string]interface{} {
	t.Helper()
	msg := map[string]interface{}{}
	if err := json.Unmarshal(frame.data, &msg); err != nil {
		t.Fatalf("解析帧失败: %v, 原始数据 %q", err, frame.data)
	}
	return msg
}

func TestHandleInactiveAtConnect(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeTranslate)

	// 模式关闭时Handle应下发状态后立即关闭
	env.handler.Handle(env.session)

	frames := env.conn.writtenFrames()
	if len(frames) < 2 {
		t.Fatalf("帧数 = %d, want >= 2", len(frames))
	}

	status := decodeFrame(t, frames[0])
	if status["type"] != "status" || status["active"] != false {
		t.Errorf("状态帧 = %v, want type=status active=false", status)
	}

	if frames[1].messageType != websocket.CloseMessage {
		t.Errorf("第二帧类型 = %d, want 关闭帧 %d", frames[1].messageType, websocket.CloseMessage)
	}

	if env.registry.Count() != 0 {
		t.Error("Handle返回后会话应已从注册表移除")
	}
}

func TestHandleActiveStatusThenRead(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeCalorie)
	env.gate.Toggle(analysis.ModeCalorie)

	done := make(chan struct{})
	go func() {
		env.handler.Handle(env.session)
		close(done)
	}()

	frames := waitFrames(t, env.conn, 1)
	status := decodeFrame(t, frames[0])
	if status["type"] != "status" || status["active"] != true {
		t.Errorf("状态帧 = %v, want type=status active=true", status)
	}

	env.conn.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("连接关闭后Handle未返回")
	}
}

func TestHandleMalformedMessage(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeTranslate)
	env.gate.Toggle(analysis.ModeTranslate)

	go env.handler.Handle(env.session)
	waitFrames(t, env.conn, 1)

	env.conn.inbound <- []byte("这不是JSON")

	frames := waitFrames(t, env.conn, 2)
	msg := decodeFrame(t, frames[1])
	if msg["status"] != "error" {
		t.Errorf("status = %v, want error", msg["status"])
	}
	if env.fetcher.callCount() != 0 {
		t.Error("非法消息不应触发图片下载")
	}

	env.conn.Close()
}

func TestHandleMidSessionDeactivation(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeNavigate)
	env.gate.Toggle(analysis.ModeNavigate)

	go env.handler.Handle(env.session)
	waitFrames(t, env.conn, 1)

	// 中途停用：连接保持，后续消息收到可恢复的错误信封
	env.gate.Toggle(analysis.ModeNavigate)
	env.conn.inbound <- []byte(`{"image_url":"https://example.com/a.jpg"}`)

	frames := waitFrames(t, env.conn, 2)
	msg := decodeFrame(t, frames[1])
	if msg["status"] != "error" {
		t.Errorf("status = %v, want error", msg["status"])
	}
	if env.fetcher.callCount() != 0 {
		t.Error("模式停用后不应触发图片下载")
	}
	if env.conn.isClosed() {
		t.Error("中途停用不应关闭连接")
	}

	env.conn.Close()
}

func TestHandleBusyWhileProcessing(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeCalorie)
	env.gate.Toggle(analysis.ModeCalorie)

	block := make(chan struct{})
	env.fetcher.blockCh = block
	env.invoker.response = `{"total_calories":100,"food_items":[]}`

	go env.handler.Handle(env.session)
	waitFrames(t, env.conn, 1)

	// 第一条消息进入处理
	env.conn.inbound <- []byte(`{"image_url":"https://example.com/a.jpg"}`)
	frames := waitFrames(t, env.conn, 2)
	if msg := decodeFrame(t, frames[1]); msg["status"] != "processing" {
		t.Fatalf("status = %v, want processing", msg["status"])
	}

	// 处理期间的第二条消息立即收到busy，不排队
	env.conn.inbound <- []byte(`{"image_url":"https://example.com/b.jpg"}`)
	frames = waitFrames(t, env.conn, 3)
	if msg := decodeFrame(t, frames[2]); msg["status"] != "error" {
		t.Errorf("status = %v, want error(busy)", msg["status"])
	}
	if env.fetcher.callCount() != 1 {
		t.Errorf("下载调用次数 = %d, want 1", env.fetcher.callCount())
	}

	// 放行后第一条消息正常完成
	close(block)
	frames = waitFrames(t, env.conn, 4)
	if msg := decodeFrame(t, frames[3]); msg["status"] != "success" {
		t.Errorf("status = %v, want success", msg["status"])
	}

	env.conn.Close()
}

func TestHandleCalorieEndToEnd(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeCalorie)
	env.gate.Toggle(analysis.ModeCalorie)
	env.invoker.response = `识别完成：{"total_calories":450,"food_items":[{"food_name":"pizza","calories":450,"confidence":0.92}],"confidence":0.88}`

	go env.handler.Handle(env.session)
	waitFrames(t, env.conn, 1)

	env.conn.inbound <- []byte(`{"image_url":"https://example.com/pizza.jpg"}`)

	frames := waitFrames(t, env.conn, 3)
	success := decodeFrame(t, frames[2])
	if success["status"] != "success" {
		t.Fatalf("status = %v, want success", success["status"])
	}
	if success["confidence"] != 0.88 {
		t.Errorf("confidence = %v, want 0.88", success["confidence"])
	}

	result, ok := success["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("result类型 = %T, want 对象", success["result"])
	}
	if result["total_calories"] != float64(450) {
		t.Errorf("total_calories = %v, want 450", result["total_calories"])
	}
	items, _ := result["food_items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("food_items长度 = %d, want 1", len(items))
	}
	if item := items[0].(map[string]interface{}); item["name"] != "pizza" {
		t.Errorf("food name = %v, want pizza", item["name"])
	}

	// 结果异步入库，来源标记为messenger
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(env.store.saved()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	records := env.store.saved()
	if len(records) != 1 {
		t.Fatalf("入库记录数 = %d, want 1", len(records))
	}
	if records[0].Source != "messenger" || records[0].SessionID != "glasses-001" {
		t.Errorf("记录 = %+v, want source=messenger session=glasses-001", records[0])
	}

	env.conn.Close()
}

func TestHandleReconnectKeepsNewSession(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeTranslate)
	env.gate.Toggle(analysis.ModeTranslate)

	done := make(chan struct{})
	go func() {
		env.handler.Handle(env.session)
		close(done)
	}()
	waitFrames(t, env.conn, 1)

	// 同ID重连：Register关闭旧连接，旧handler的读循环随之退出
	newConn := newFakeConn()
	newSession := env.registry.Register("glasses-001", newConn)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("旧连接关闭后Handle未返回")
	}

	// 旧handler的清理不得摘除或关闭新连接
	if newConn.isClosed() {
		t.Error("重连后新连接被旧会话的清理关闭")
	}
	if env.registry.Count() != 1 {
		t.Errorf("重连后Count() = %d, want 1", env.registry.Count())
	}
	got, ok := env.registry.Get("glasses-001")
	if !ok || got != newSession {
		t.Error("注册表应仍指向新会话")
	}
}

func TestHandleFetchFailure(t *testing.T) {
	env := newHandlerEnv(t, analysis.ModeTranslate)
	env.gate.Toggle(analysis.ModeTranslate)
	env.fetcher.data = nil
	env.fetcher.err = &fetch.FetchError{Reason: fetch.ReasonTimeout}

	go env.handler.Handle(env.session)
	waitFrames(t, env.conn, 1)

	env.conn.inbound <- []byte(`{"image_url":"https://example.com/a.jpg"}`)

	// processing之后跟一个错误信封，会话保持可用
	frames := waitFrames(t, env.conn, 3)
	if msg := decodeFrame(t, frames[2]); msg["status"] != "error" {
		t.Errorf("status = %v, want error", msg["status"])
	}
	if env.conn.isClosed() {
		t.Error("下载失败不应关闭连接")
	}

	env.conn.Close()
}
