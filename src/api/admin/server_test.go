package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiglasses-server-go/src/configs"
	"aiglasses-server-go/src/core/analysis"
	"aiglasses-server-go/src/core/auth"
	"aiglasses-server-go/src/core/gate"
	"aiglasses-server-go/src/core/utils"

	"github.com/gin-gonic/gin"
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

func newTestRouter(t *testing.T, config *configs.Config) (*gin.Engine, *gate.ModeGate) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	modeGate := gate.NewModeGate()
	service := NewDefaultAdminService(config, newTestLogger(t), modeGate)

	router := gin.New()
	apiGroup := router.Group("/api/v1")
	if err := service.Start(context.Background(), router, apiGroup); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return router, modeGate
}

func doRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestToggleEndpoint(t *testing.T) {
	router, modeGate := newTestRouter(t, &configs.Config{})

	// 开启
	w := doRequest(router, http.MethodPost, "/api/v1/calorie/messenger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp["status"] != "success" || resp["is_active"] != true {
		t.Errorf("开启响应 = %v, want status=success is_active=true", resp)
	}
	if resp["process_type"] != "calorie" {
		t.Errorf("process_type = %v, want calorie", resp["process_type"])
	}
	if !modeGate.IsActive(analysis.ModeCalorie) {
		t.Error("开启后ModeGate中calorie应为激活")
	}

	// 关闭
	w = doRequest(router, http.MethodPost, "/api/v1/calorie/messenger", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp["is_active"] != false {
		t.Errorf("关闭响应 is_active = %v, want false", resp["is_active"])
	}
	if resp["process_type"] != nil {
		t.Errorf("关闭后process_type = %v, want null", resp["process_type"])
	}
	if modeGate.IsActive(analysis.ModeCalorie) {
		t.Error("关闭后ModeGate中calorie应为未激活")
	}
}

func TestToggleOnlyAffectsOwnMode(t *testing.T) {
	router, modeGate := newTestRouter(t, &configs.Config{})

	doRequest(router, http.MethodPost, "/api/v1/translate/messenger", "")

	if !modeGate.IsActive(analysis.ModeTranslate) {
		t.Error("translate应为激活")
	}
	if modeGate.IsActive(analysis.ModeCalorie) || modeGate.IsActive(analysis.ModeNavigate) {
		t.Error("其他模式不应受影响")
	}
}

func TestStatusEndpoint(t *testing.T) {
	router, modeGate := newTestRouter(t, &configs.Config{})
	modeGate.Toggle(analysis.ModeNavigate)

	w := doRequest(router, http.MethodGet, "/api/v1/navigate/messenger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp["is_active"] != true || resp["process_type"] != "navigate" {
		t.Errorf("状态响应 = %v, want is_active=true process_type=navigate", resp)
	}
}

func TestUnknownModeNotRouted(t *testing.T) {
	router, _ := newTestRouter(t, &configs.Config{})

	w := doRequest(router, http.MethodPost, "/api/v1/chat/messenger", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("未知模式状态码 = %d, want 404", w.Code)
	}
}

func TestToggleAuth(t *testing.T) {
	config := &configs.Config{}
	config.Server.Token = "test-secret"
	config.Server.Auth.Enabled = true
	router, modeGate := newTestRouter(t, config)

	t.Run("缺少token被拒绝", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/translate/messenger", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("状态码 = %d, want 401", w.Code)
		}
		if modeGate.IsActive(analysis.ModeTranslate) {
			t.Error("认证失败不应切换开关")
		}
	})

	t.Run("无效token被拒绝", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/translate/messenger", "bad-token")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("状态码 = %d, want 401", w.Code)
		}
	})

	t.Run("合法token放行", func(t *testing.T) {
		token, err := auth.NewAuthToken("test-secret").GenerateToken("admin", time.Hour)
		if err != nil {
			t.Fatalf("签发token失败: %v", err)
		}

		w := doRequest(router, http.MethodPost, "/api/v1/translate/messenger", token)
		if w.Code != http.StatusOK {
			t.Errorf("状态码 = %d, want 200", w.Code)
		}
		if !modeGate.IsActive(analysis.ModeTranslate) {
			t.Error("认证通过后开关应已切换")
		}
	})
}

func TestCORSHeaders(t *testing.T) {
	router, _ := newTestRouter(t, &configs.Config{})

	w := doRequest(router, http.MethodOptions, "/api/v1/calorie/messenger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("OPTIONS状态码 = %d, want 200", w.Code)
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}
}
