package main

import (
	"HandClash/config"
	"HandClash/internal/account"
	"HandClash/internal/auth"
	"HandClash/internal/game/manager"
	"HandClash/internal/middleware"
	"HandClash/internal/storage"
	"HandClash/internal/utils"
	"HandClash/internal/websocket"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()
	utils.Init()

	//-------------------------------------------------------
	// 1. 账号存储：Postgres > Redis > 内存
	//-------------------------------------------------------
	var accounts account.Repo
	switch {
	case config.C.Database.DSN != "":
		if err := storage.InitPostgres(config.C.Database.DSN); err != nil {
			utils.Error.Fatalf("Postgres init failed: %v", err)
		}
		repo, err := account.NewPostgresRepo(storage.DB)
		if err != nil {
			utils.Error.Fatalf("Postgres schema init failed: %v", err)
		}
		accounts = repo

	case config.C.Redis.Addr != "":
		if err := storage.InitRedis(
			config.C.Redis.Addr,
			config.C.Redis.Password,
			config.C.Redis.DB,
		); err != nil {
			utils.Error.Fatalf("Redis init failed: %v", err)
		}
		accounts = account.NewRedisRepo(storage.Rdb)

	default:
		utils.Print.Warn("no database/redis configured, accounts are in-memory only")
		accounts = account.NewMemoryRepo()
	}

	//-------------------------------------------------------
	// 2. 初始化 Gin + CORS
	//-------------------------------------------------------
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	//-------------------------------------------------------
	// 3. 初始化 Hub（必须最先启动）
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()

	//-------------------------------------------------------
	// 4. 初始化 Manager（房间注册表 + 大厅 + 战绩）
	//-------------------------------------------------------
	mgr := manager.NewManager(hub, accounts)
	hub.OnIncoming = mgr.HandleIncoming
	hub.OnConnect = mgr.HandleConnect
	hub.OnDisconnect = mgr.HandleDisconnect

	//-------------------------------------------------------
	// 5. 账号路由（注册/登录不要求 JWT）
	//-------------------------------------------------------
	secret := []byte(config.C.JWT.Secret)
	authGroup := r.Group("/auth")
	{
		ah := auth.NewHandler(accounts, secret)
		authGroup.POST("/register", ah.Register)
		authGroup.POST("/login", ah.Login)
	}

	r.GET("/leaderboard", func(c *gin.Context) {
		entries, err := mgr.Leaderboard(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	})

	//-------------------------------------------------------
	// 6. WebSocket 入口（JWT 保护）
	//-------------------------------------------------------
	protected := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		protected.GET("/ws", websocket.ServeWS(hub))
	}

	//-------------------------------------------------------
	// 7. 启动服务器
	//-------------------------------------------------------
	utils.Info.Printf("Server running on %s", config.C.Server.Port)
	if err := r.Run(config.C.Server.Port); err != nil {
		utils.Error.Fatalf("server exited: %v", err)
	}
}
