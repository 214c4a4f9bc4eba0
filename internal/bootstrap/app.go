package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"draw-guess/internal/gateway"
	httpHandler "draw-guess/internal/handler/http"
	wsHandler "draw-guess/internal/handler/websocket"
	"draw-guess/internal/hub"
	"draw-guess/internal/middleware"
	"draw-guess/internal/registry"
	"draw-guess/internal/service"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort      string
	LogLevel        string
	AppEnv          string        // 应用环境 (development/production)
	MaxRounds       int           // 每局游戏的轮数
	RevealDelay     time.Duration // 回合结束到下一回合之间的揭晓延迟
	RateLimitMax    int
	RateLimitWindow time.Duration
	CORSOrigin      string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		ServerPort: os.Getenv("SERVER_PORT"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		AppEnv:     os.Getenv("APP_ENV"),
		CORSOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		// --- 设置默认值 ---
		MaxRounds:       3,
		RevealDelay:     3 * time.Second,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	if v := os.Getenv("MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_ROUNDS %q", v)
		}
		cfg.MaxRounds = n
	}
	if v := os.Getenv("REVEAL_DELAY_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid REVEAL_DELAY_SECONDS %q", v)
		}
		cfg.RevealDelay = time.Duration(n) * time.Second
	}

	// --- 设置其他默认值 ---
	if cfg.ServerPort == "" {
		cfg.ServerPort = "3001"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:3000" // 开发默认
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config     *Config
	Log        *logrus.Logger
	Registry   *registry.Registry
	Hub        *hub.Hub
	Gateway    *gateway.Gateway
	HttpServer *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		// 使用标准输出记录启动时错误，因为 logrus 可能还未完全配置
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel)
	log.Infof("Logger initialized (Level: %s)", logLevel.String())
	log.Info("Configuration loaded successfully")

	// 3. 初始化核心组件
	log.Info("Initializing core components...")
	reg := registry.New(cfg.MaxRounds)
	turnEngine := service.NewTurnEngine()
	guessEvaluator := service.NewGuessEvaluator()
	wordService := service.NewWordService(reg)
	log.Info("Core components initialized")

	// 4. 初始化 Hub 和 Gateway (两者互相引用，Handler 后注入)
	log.Info("Initializing hub and gateway...")
	hubInstance := hub.NewHub()
	gw := gateway.New(reg, turnEngine, guessEvaluator, hubInstance, cfg.RevealDelay)
	hubInstance.SetHandler(gw)
	log.Info("Hub and gateway initialized")

	// 5. 初始化 Handlers
	log.Info("Initializing handlers...")
	wordHandler := httpHandler.NewWordHandler(wordService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance)
	log.Info("Handlers initialized")

	// 6. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow))

	// --- 设置路由 ---
	api := router.Group("/api")
	{
		api.POST("/words", wordHandler.UploadWords)
	}
	router.GET("/ws", websocketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 7. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	// 8. 组装 App 对象
	app := &App{
		Config:     cfg,
		Log:        log,
		Registry:   reg,
		Hub:        hubInstance,
		Gateway:    gw,
		HttpServer: httpServer,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 优雅关闭 HTTP 服务器 (同时停止接受新的 WebSocket 升级)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 停止 Hub 的事件循环
	if a.Hub != nil {
		a.Hub.Stop()
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next() // 处理请求
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   clientIP,
			"method":      method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			// 区分状态码记录日志级别
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
