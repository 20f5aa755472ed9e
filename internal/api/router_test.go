package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mealie-organizer/internal/core/mealie"
	"mealie-organizer/internal/core/runtime"
	"mealie-organizer/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
)

// fakeMealie 模擬上游 Mealie：users/self 驗證與空的食譜清單
func fakeMealie(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/users/self":
			switch r.Header.Get("Authorization") {
			case "Bearer admin-token":
				fmt.Fprint(w, `{"username":"admin","fullName":"Site Admin","admin":true}`)
			case "Bearer user-token":
				fmt.Fprint(w, `{"username":"casual","fullName":"Casual User","admin":false}`)
			default:
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"detail":"invalid token"}`)
			}
		case "/api/recipes":
			fmt.Fprint(w, `{"items":[],"next":null}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testRouterConfig(upstream string) *config.Config {
	cfg := &config.Config{}
	cfg.Mealie.URL = upstream + "/api"
	cfg.Mealie.APIKey = "service-key"
	cfg.Mealie.Timeout = 5 * time.Second
	cfg.Parser.ConfidenceThreshold = 0.8
	cfg.Parser.Strategies = []string{"nlp"}
	cfg.Parser.OutputDir = "/tmp"
	cfg.Plugin.BasePath = "/mo-plugin"
	cfg.Plugin.TokenCookies = []string{"mealie.access_token", "access_token"}
	cfg.Plugin.AuthTimeout = 5 * time.Second
	return cfg
}

func performRequest(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAuthContextMissingToken(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/auth/context", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, false, payload["authenticated"])
	assert.Equal(t, "missing_token", payload["auth_error"])
	assert.Nil(t, payload["username"])
}

func TestAuthContextAdminViaCookie(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/auth/context", map[string]string{
		"Cookie": "mealie.access_token=admin-token",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, true, payload["admin"])
	assert.Equal(t, "admin", payload["username"])
	assert.Equal(t, "Site Admin", payload["full_name"])
}

func TestAuthContextInvalidToken(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/auth/context", map[string]string{
		"Authorization": "Bearer bogus",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, false, payload["authenticated"])
	assert.Equal(t, "invalid_token", payload["auth_error"])
	assert.Equal(t, float64(http.StatusUnauthorized), payload["auth_status_code"])
}

func TestParserStatusRequiresAdmin(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	// 無憑證 → 401
	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/parser/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 非管理員 → 403
	rec = performRequest(router, http.MethodGet, "/mo-plugin/api/v1/parser/status", map[string]string{
		"Authorization": "Bearer user-token",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_required")

	// 管理員 → 200 快照
	rec = performRequest(router, http.MethodGet, "/mo-plugin/api/v1/parser/status", map[string]string{
		"Authorization": "Bearer admin-token",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)
}

func TestStartParserRunConflict(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	controller := runtime.NewParserRunController()
	router := SetupRouter(cfg, mealie.NewClient(cfg), controller)

	headers := map[string]string{"Authorization": "Bearer admin-token"}

	rec := performRequest(router, http.MethodPost, "/mo-plugin/api/v1/parser/runs", headers)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.NotEmpty(t, started["run_id"])

	// 背景任務對空食譜清單很快結束，等待它收尾
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if controller.Snapshot()["status"] != runtime.StatusRunning {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, runtime.StatusSucceeded, controller.Snapshot()["status"])
}

func TestStartParserRunAlreadyActive(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	controller := runtime.NewParserRunController()
	router := SetupRouter(cfg, mealie.NewClient(cfg), controller)

	// 直接佔住控制器模擬進行中的任務
	assert.NotNil(t, controller.StartDryRun())

	rec := performRequest(router, http.MethodPost, "/mo-plugin/api/v1/parser/runs", map[string]string{
		"Authorization": "Bearer admin-token",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_in_progress")
}

func TestStaticAssetsSubstituteBasePath(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/static/injector.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `const BASE_PATH = "/mo-plugin";`)
	assert.NotContains(t, rec.Body.String(), "__BASE_PATH__")

	rec = performRequest(router, http.MethodGet, "/mo-plugin/static/page.css", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	// 頁面本身需要管理員
	rec = performRequest(router, http.MethodGet, "/mo-plugin/page", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(router, http.MethodGet, "/mo-plugin/page", map[string]string{
		"Authorization": "Bearer admin-token",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/mo-plugin/static/page.js")
}

func TestUnknownPathReturnsJSON404(t *testing.T) {
	upstream := fakeMealie(t)
	defer upstream.Close()

	cfg := testRouterConfig(upstream.URL)
	router := SetupRouter(cfg, mealie.NewClient(cfg), runtime.NewParserRunController())

	rec := performRequest(router, http.MethodGet, "/mo-plugin/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}
