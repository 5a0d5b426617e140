package auth

import (
	"errors"
	"net/http"
	"time"

	"HandClash/internal/account"

	"github.com/alexedwards/argon2id"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Handler struct {
	accounts account.Repo
	secret   []byte
}

// 工厂方法：创建 handler
func NewHandler(accounts account.Repo, secret []byte) *Handler {
	return &Handler{accounts: accounts, secret: secret}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
		return
	}

	err = h.accounts.Create(c.Request.Context(), account.Account{
		Username:     req.Username,
		PasswordHash: hash,
		Nickname:     req.Nickname,
	})
	if errors.Is(err, account.ErrExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "用户名已存在！"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "注册成功！请登录。"})
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	a, err := h.accounts.Get(c.Request.Context(), req.Username)
	if errors.Is(err, account.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户不存在！"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, a.PasswordHash)
	if err != nil || !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "密码错误！"})
		return
	}

	//-----------------------------
	// ✓ 密码验证成功 → 生成 JWT
	//-----------------------------
	claims := jwt.MapClaims{
		"sub": a.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	jwtStr, err := token.SignedString(h.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jwt":      jwtStr,
		"username": a.Username,
		"nickname": a.Nickname,
		"stats":    a.Stats,
	})
}
