package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"flipper/internal/api/middleware"
	"flipper/internal/auction"
	"flipper/internal/catalog"
	"flipper/internal/config"
	"flipper/internal/embedder"
	"flipper/internal/embedding"
	"flipper/internal/match"
	"flipper/internal/model"
	"flipper/internal/pkg/embedcache"
	"flipper/internal/pkg/metrics"
	"flipper/internal/pkg/notify"
	"flipper/internal/pkg/ratelimit"
	"flipper/internal/pkg/redisqueue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、推荐引擎、拍卖状态机、
// 向量服务客户端以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	store      *catalog.Store
	backfiller *embedder.Backfiller

	products    ProductStore
	users       UserStore
	recommender Recommender
	bids        BidPlacer
	provider    EmbeddingProvider
}

// ProductStore 商品目录的读写能力。
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ScanProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	MarkSold(ctx context.Context, productID, buyerID string) (*model.Product, error)
}

// UserStore 用户与心愿单的读写能力。
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	AddToWishlist(ctx context.Context, userID, productID string) (*model.User, error)
	RemoveFromWishlist(ctx context.Context, userID, productID string) (*model.User, error)
}

// Recommender 推荐引擎。
type Recommender interface {
	Recommend(ctx context.Context, userID string, maxResults int) ([]model.Product, error)
}

// BidPlacer 拍卖出价状态机。
type BidPlacer interface {
	PlaceBid(ctx context.Context, productID, bidderID string, amount float64) (*model.Product, error)
}

// EmbeddingProvider 单张图片的向量计算能力。
type EmbeddingProvider interface {
	Embed(ctx context.Context, imageURL string) ([]float64, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 组装推荐引擎、拍卖状态机、向量服务客户端与回填调度器
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}

	store, err := catalog.NewStore(db)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics(cfg.Embedding.WorkerPoolSize)

	notifier := notify.NewEmailNotifier(&cfg.Email, logger)
	limiter := ratelimit.New(rdb, logger, "flipper:ratelimit:embedding", cfg.Embedding.RateLimit, cfg.Embedding.RateBurst)
	provider := embedding.NewClient(&cfg.Embedding, limiter, logger)

	jobs, err := redisqueue.NewClient(rdb)
	if err != nil {
		return nil, err
	}
	cache := embedcache.NewCache(rdb, cfg.Embedding.CacheTTL)
	backfiller := embedder.New(
		store,
		provider,
		cache,
		jobs,
		logger,
		cfg.Embedding.WorkerPoolSize,
		cfg.Embedding.QueueCapacity,
		cfg.Embedding.BackfillInterval,
		cfg.Embedding.BackfillBatch,
		cfg.Embedding.RescueInterval,
		cfg.Embedding.RescueTimeout,
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		rdb:         rdb,
		router:      r,
		store:       store,
		backfiller:  backfiller,
		products:    store,
		users:       store,
		recommender: match.NewEngine(store, logger),
		bids:        auction.NewMachine(store, notifier, logger),
		provider:    provider,
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartBackfiller 启动向量回填调度器。
func (s *Server) StartBackfiller(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in embedding backfiller", slog.Any("panic", r))
			}
		}()
		s.backfiller.Run(ctx)
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.backfiller != nil {
		if err := s.backfiller.Shutdown(10 * time.Second); err != nil {
			firstErr = err
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
				firstErr = closeErr
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	authed := s.router.Group("/api")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret))
	authed.Use(middleware.PresenceMiddleware(s.rdb, s.cfg.Security.PresenceTimeout))

	authed.GET("/products", s.handleListProducts)
	authed.GET("/products/by-id/:productId", s.handleGetProduct)
	authed.POST("/products", s.handleCreateProduct)
	authed.PATCH("/products/mark-as-sold/:productId", s.handleMarkAsSold)
	authed.POST("/products/image", s.handleImageSearch)

	authed.GET("/recommendations/:userId", s.handleRecommendations)

	authed.POST("/bids/:productId/bid", s.handlePlaceBid)

	authed.GET("/users/wishlist/by-user-id/:userId", s.handleGetWishlist)
	authed.PUT("/users/wishlist/by-user-and-product-id/:userId/:productId", s.handleAddToWishlist)
	authed.DELETE("/users/wishlist/by-user-and-product-id/:userId/:productId", s.handleRemoveFromWishlist)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
