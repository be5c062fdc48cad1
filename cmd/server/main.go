// Package main 是服务端的入口点
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pcbuild/internal/cache"
	"pcbuild/internal/catalog"
	"pcbuild/internal/config"
	"pcbuild/internal/engine"
	"pcbuild/internal/enrich"
	"pcbuild/internal/handler"
	"pcbuild/internal/middleware"
	"pcbuild/internal/model"
	"pcbuild/internal/oracle"
	"pcbuild/internal/repository"
	"pcbuild/internal/service"
	"pcbuild/internal/websocket"
	"pcbuild/pkg/jwt"
	"pcbuild/pkg/logger"
	"pcbuild/pkg/response"
)

func main() {
	configDir := flag.String("config", "./configs", "配置文件目录")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(cfg.JWT.Secret) < 32 {
		log.Fatal("jwt.secret must be at least 32 characters")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to init database", "driver", cfg.Database.Driver, "error", err)
	}
	if err := db.AutoMigrate(model.Tables()...); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}
	log.Info("database ready", "driver", cfg.Database.Driver)

	// 初始化缓存：启用 Redis 时支持多实例部署
	store, err := initStore(cfg)
	if err != nil {
		log.Fatal("failed to init cache", "error", err)
	}
	defer store.Close()

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpire)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	componentRepo := repository.NewComponentRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	buildRepo := repository.NewBuildRepository(db)

	// 配件目录
	catalogCache, err := initCatalog(ctx, cfg, componentRepo, log)
	if err != nil {
		log.Fatal("failed to init catalog", "error", err)
	}

	// 模型服务
	orc, err := oracle.New(ctx, cfg.AI, log)
	if err != nil {
		log.Fatal("failed to init oracle", "provider", cfg.AI.Provider, "error", err)
	}

	// 对话引擎
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithTimeout(cfg.Server.TurnTimeout),
	}
	if cfg.Enrichment.Enabled {
		enricher := enrich.NewService(
			enrich.NewIPAPI(cfg.Enrichment.GeoURL, cfg.Enrichment.Timeout),
			enrich.NewOpenMeteo(cfg.Enrichment.ClimateURL, cfg.Enrichment.Timeout),
			log,
		)
		opts = append(opts, engine.WithEnricher(enricher))
	}
	eng := engine.New(orc, catalogCache, opts...)

	// 初始化 Service 层
	turnTimeout := cfg.Server.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = engine.DefaultTurnTimeout
	}
	authService := service.NewAuthService(userRepo, store, jwtService)
	userService := service.NewUserService(userRepo)
	buildService := service.NewBuildService(buildRepo)
	catalogService := service.NewCatalogService(catalogCache)
	chatService := service.NewChatService(eng, conversationRepo, repository.NewMessageRepository(db), buildService, userService, store, log, turnTimeout+30*time.Second)

	// 初始化 WebSocket Hub
	wsHub := websocket.NewHub(chatService, store, log)
	go func() {
		if err := wsHub.Run(ctx); err != nil {
			log.Error("websocket hub stopped", "error", err)
		}
	}()

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.Server.CORS...)))

	authMW := middleware.AuthMiddleware(jwtService, store)
	var limit gin.HandlerFunc
	if cfg.Server.RateLimit > 0 {
		limit = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimit/5+1).Middleware()
	}

	registerRoutes(router, authMW, limit, routes{
		auth:         handler.NewAuthHandler(authService),
		user:         handler.NewUserHandler(userService),
		conversation: handler.NewConversationHandler(chatService),
		build:        handler.NewBuildHandler(buildService),
		catalog:      handler.NewCatalogHandler(catalogService),
		health:       handler.NewHealthHandler(db, store),
		ws:           websocket.NewHandler(wsHub, jwtService, store, cfg.Server.CORS),
	})

	// WriteTimeout 需要覆盖一轮对话的模型调用
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: turnTimeout + 15*time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	// 优雅关闭
	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), turnTimeout+10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// 等待 WebSocket 上正在进行的轮次写入数据库
	done := make(chan struct{})
	go func() {
		wsHub.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("gave up waiting for in-flight turns")
	}

	log.Info("server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.ConnString())
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.ConnString())
	default:
		dialector = mysql.Open(cfg.Database.ConnString())
	}

	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)
	return db, nil
}

// initStore Redis 未启用时使用进程内缓存
func initStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cfg.Redis.SnapshotTTL), nil
	}
	return cache.NewRedisCache(cfg.Redis)
}

// initCatalog 创建目录缓存；db 模式下目录为空时从 YAML 文件导入
func initCatalog(ctx context.Context, cfg *config.Config, repo *repository.ComponentRepository, log *logger.Logger) (*catalog.Cache, error) {
	opts := catalog.Options{SampleCap: cfg.Catalog.SampleCap, PerCategory: cfg.Catalog.PerCategory}

	if cfg.Catalog.Source == "yaml" {
		return catalog.NewCache(catalog.NewYAMLSource(cfg.Catalog.SeedFile), opts, log), nil
	}

	if cfg.Catalog.SeedFile != "" {
		if _, err := os.Stat(cfg.Catalog.SeedFile); err != nil {
			log.Warn("catalog seed file not readable", "path", cfg.Catalog.SeedFile, "error", err)
		} else {
			n, err := catalog.Seed(ctx, repo, cfg.Catalog.SeedFile)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				log.Info("catalog seeded", "components", n, "path", cfg.Catalog.SeedFile)
			}
		}
	}
	return catalog.NewCache(catalog.NewDBSource(repo), opts, log), nil
}

type routes struct {
	auth         *handler.AuthHandler
	user         *handler.UserHandler
	conversation *handler.ConversationHandler
	build        *handler.BuildHandler
	catalog      *handler.CatalogHandler
	health       *handler.HealthHandler
	ws           *websocket.Handler
}

// registerRoutes 注册所有路由
// limit 为 nil 时不限流
func registerRoutes(router *gin.Engine, authMW, limit gin.HandlerFunc, h routes) {
	// 健康检查
	router.GET("/health", h.health.Health)

	// API v1 路由组
	v1 := router.Group("/api/v1")

	// 认证相关（无需登录）
	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.auth.Register)
		auth.POST("/login", h.auth.Login)
		auth.POST("/refresh", h.auth.RefreshToken)
		auth.POST("/logout", authMW, h.auth.Logout)
	}

	// 用户相关（需要登录）
	users := v1.Group("/users")
	users.Use(authMW)
	{
		users.GET("/me", h.user.GetProfile)
		users.PUT("/me", h.user.UpdateProfile)
		users.PUT("/me/password", h.user.ChangePassword)
	}

	// 对话相关（需要登录）；发送消息会调用模型，单独限流
	turn := []gin.HandlerFunc{}
	if limit != nil {
		turn = append(turn, limit)
	}
	conversations := v1.Group("/conversations")
	conversations.Use(authMW)
	{
		conversations.POST("", h.conversation.Create)
		conversations.GET("", h.conversation.List)
		conversations.GET("/:id", h.conversation.Get)
		conversations.DELETE("/:id", h.conversation.Delete)
		conversations.GET("/:id/messages", h.conversation.Messages)
		conversations.POST("/:id/messages", append(turn, h.conversation.SendMessage)...)
		conversations.POST("/:id/consent", append(turn, h.conversation.ResolveConsent)...)
		conversations.POST("/:id/build", h.conversation.SaveBuild)
	}

	// 配置单相关（需要登录）
	builds := v1.Group("/builds")
	builds.Use(authMW)
	{
		builds.GET("", h.build.List)
		builds.GET("/:id", h.build.Get)
		builds.PATCH("/:id", h.build.Rename)
		builds.DELETE("/:id", h.build.Delete)
	}

	// 配件目录（需要登录）
	cat := v1.Group("/catalog")
	cat.Use(authMW)
	{
		cat.GET("/preview", h.catalog.Preview)
		cat.GET("/components/:id", h.catalog.GetComponent)
		cat.POST("/reload", h.catalog.Reload)
	}

	// WebSocket 路由
	h.ws.RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
}
