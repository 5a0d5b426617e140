package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HandClash/internal/account"
)

var testSecret = []byte("test-secret")

func newRouter() (*gin.Engine, account.Repo) {
	gin.SetMode(gin.TestMode)
	repo := account.NewMemoryRepo()
	h := NewHandler(repo, testSecret)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return r, repo
}

func doJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	r, _ := newRouter()

	w := doJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "secret", Nickname: "小红"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "/auth/login", LoginRequest{Username: "alice", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JWT      string        `json:"jwt"`
		Username string        `json:"username"`
		Nickname string        `json:"nickname"`
		Stats    account.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "小红", resp.Nickname)
	assert.Equal(t, account.Stats{}, resp.Stats)

	// 签发的 token 必须能用同一密钥验证，sub 为账号名
	token, err := jwt.Parse(resp.JWT, func(t *jwt.Token) (any, error) { return testSecret, nil })
	require.NoError(t, err)
	sub, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	r, _ := newRouter()

	doJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "secret", Nickname: "小红"})
	w := doJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "other", Nickname: "小蓝"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "用户名已存在")
}

func TestRegisterValidation(t *testing.T) {
	r, _ := newRouter()

	w := doJSON(t, r, "/auth/register", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginFailures(t *testing.T) {
	r, _ := newRouter()
	doJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "secret", Nickname: "小红"})

	t.Run("unknown user", func(t *testing.T) {
		w := doJSON(t, r, "/auth/login", LoginRequest{Username: "ghost", Password: "secret"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "用户不存在")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(t, r, "/auth/login", LoginRequest{Username: "alice", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "密码错误")
	})
}

func TestPasswordHashNeverLeaks(t *testing.T) {
	r, repo := newRouter()
	doJSON(t, r, "/auth/register", RegisterRequest{Username: "alice", Password: "secret", Nickname: "小红"})

	a, err := repo.Get(t.Context(), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, a.PasswordHash)

	raw, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), a.PasswordHash)
}
