package mealie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mealie-organizer/internal/infrastructure/config"
	"mealie-organizer/internal/pkg/common"

	"github.com/stretchr/testify/assert"
)

func testClient(serverURL string) *Client {
	cfg := &config.Config{}
	cfg.Mealie.URL = serverURL + "/api"
	cfg.Mealie.APIKey = "test-key"
	cfg.Mealie.Timeout = 5 * time.Second
	cfg.Mealie.Retries = 0
	cfg.Mealie.Backoff = time.Millisecond
	return NewClient(cfg)
}

func TestListFoodsFollowsNextLinkWithDuplicateBasePath(t *testing.T) {
	var secondRequest string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "", "1":
			// Mealie 的 next 連結帶著重複的 /api 前綴
			fmt.Fprint(w, `{"items":[{"id":"f1","name":"onion"}],"next":"/api/foods?page=2&perPage=1000"}`)
		case "2":
			secondRequest = r.URL.String()
			fmt.Fprint(w, `{"items":[{"id":"f2","name":"garlic"}],"next":null}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	foods, err := testClient(server.URL).ListFoods(context.Background())
	assert.NoError(t, err)
	assert.Len(t, foods, 2)
	assert.Equal(t, "onion", foods[0].Name)
	assert.Equal(t, "garlic", foods[1].Name)
	assert.Equal(t, "/api/foods?page=2&perPage=1000", secondRequest)
}

func TestNormalizeNext(t *testing.T) {
	client := testClient("http://mealie.local")

	assert.Equal(t, "", client.normalizeNext(""))
	assert.Equal(t, "/foods?page=2", client.normalizeNext("/api/foods?page=2"))
	assert.Equal(t, "/foods?page=2", client.normalizeNext("http://mealie.local/api/foods?page=2"))
	assert.Equal(t, "/foods?page=2", client.normalizeNext("foods?page=2"))
}

func TestMergeFoodsTriesPayloadShapes(t *testing.T) {
	var payloads []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/foods/merge", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		payloads = append(payloads, body)

		// 只接受 sourceId/targetId 格式
		if body["sourceId"] != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := testClient(server.URL).MergeFoods(context.Background(), "a", "b")
	assert.NoError(t, err)
	assert.Len(t, payloads, 3)
	assert.Equal(t, "a", payloads[0]["fromId"])
	assert.Equal(t, "a", payloads[1]["from"])
	assert.Equal(t, "a", payloads[2]["sourceId"])
}

func TestMergeFoodsOnlyPostRouteSucceeds(t *testing.T) {
	// 只註冊 POST 路由，其他動詞回 405：合併仍須成功
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/foods/merge", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	err := testClient(server.URL).MergeFoods(context.Background(), "a", "b")
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestMergeFoodsTriesAllShapesOnServerError(t *testing.T) {
	// 任何錯誤狀態都要繼續換格式，不是只有 400/422
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := testClient(server.URL).MergeFoods(context.Background(), "a", "b")
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestMergeFoodsAllShapesRejected(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := testClient(server.URL).MergeFoods(context.Background(), "a", "b")
	assert.Error(t, err)
	// food 類型有四種欄位格式
	assert.Equal(t, 4, attempts)
	assert.Equal(t, http.StatusInternalServerError, common.APIStatus(err))
}

func TestParseIngredientsSendsStrategy(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/parser/ingredients", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).ParseIngredients(context.Background(), "nlp", []string{"2 cups flour"})
	assert.NoError(t, err)
	assert.Equal(t, "nlp", body["strategy"])
	assert.NotContains(t, body, "parser")
	assert.Equal(t, []interface{}{"2 cups flour"}, body["ingredients"])
}

func TestListRecipesUsesConfiguredPageSize(t *testing.T) {
	var recipePerPage, foodPerPage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/recipes":
			recipePerPage = r.URL.Query().Get("perPage")
		case "/api/foods":
			foodPerPage = r.URL.Query().Get("perPage")
		}
		fmt.Fprint(w, `{"items":[],"next":null}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	client.config.Parser.PageSize = 50

	_, err := client.ListRecipes(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "50", recipePerPage)

	// 分類法端點維持大頁
	_, err = client.ListFoods(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "1000", foodPerPage)
}

func TestSelfWithToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/self", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer user-token":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"username":"alex","fullName":"Alex Doe","admin":true}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"invalid token"}`)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)

	user, status, err := client.SelfWithToken(context.Background(), "user-token")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alex", user["username"])
	assert.Equal(t, true, user["admin"])

	_, status, err = client.SelfWithToken(context.Background(), "bad-token")
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestParsedIngredientAverageConfidence(t *testing.T) {
	parsed := ParsedIngredient{Confidence: map[string]float64{"average": 0.91}}
	assert.Equal(t, 0.91, parsed.AverageConfidence())

	empty := ParsedIngredient{}
	assert.Equal(t, 0.0, empty.AverageConfidence())
}
