package router

import (
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/config"
	"github.com/chicomed/kalia-shop-sub000/internal/handler"
	"github.com/chicomed/kalia-shop-sub000/internal/infra"
	"github.com/chicomed/kalia-shop-sub000/internal/middleware"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"
	"github.com/chicomed/kalia-shop-sub000/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps carries the shared infrastructure built in the composition root.
type Deps struct {
	DB         *gorm.DB
	RDB        *redis.Client
	SMTPCB     *infra.CircuitBreaker
	Dispatcher service.JobDispatcher
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(deps.DB)
	productRepo := repository.NewProductRepository(deps.DB)
	clientRepo := repository.NewClientRepository(deps.DB)
	orderRepo := repository.NewOrderRepository(deps.DB)
	cashRepo := repository.NewCashRepository(deps.DB)
	stepRepo := repository.NewReconciliationRepository(deps.DB)

	// ── Services ─────────────────────────────────────────────────────────────
	locker := infra.NewRedisLocker(deps.RDB)
	authSvc := service.NewAuthService(userRepo, cfg)
	productSvc := service.NewProductService(productRepo)
	cashSvc := service.NewCashService(cashRepo, locker)
	clientSvc := service.NewClientService(clientRepo, cfg.VIPThresholdDecimal())
	reconcileSvc := service.NewReconcileService(stepRepo, orderRepo, clientSvc, cashSvc, locker, deps.Dispatcher)
	orderSvc := service.NewOrderService(orderRepo, productRepo, reconcileSvc, deps.Dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	productsH := handler.NewProductHandler(productSvc)
	ordersH := handler.NewOrderHandler(orderSvc)
	clientsH := handler.NewClientHandler(clientSvc)
	cashH := handler.NewCashHandler(cashSvc, deps.Dispatcher)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.DB, deps.RDB, deps.SMTPCB))

	// Storefront — no auth: browse the catalog and place orders
	r.GET("/v1/products", productsH.Browse)
	r.GET("/v1/products/:id", productsH.Get)
	r.POST("/v1/checkout", middleware.RateLimiter(30, time.Minute), ordersH.Checkout)

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: staff, admin — declared per-endpoint
		v1.GET("/orders", middleware.RequireRole("staff", "admin"), ordersH.List)
		v1.GET("/orders/revenue", middleware.RequireRole("staff", "admin"), ordersH.Revenue)
		v1.GET("/orders/:id", middleware.RequireRole("staff", "admin"), ordersH.Get)
		v1.PUT("/orders/:id/status", middleware.RequireRole("staff", "admin"), ordersH.SetStatus)

		clients := v1.Group("/clients", middleware.RequireRole("staff", "admin"))
		{
			clients.GET("", clientsH.List)
			clients.GET("/:id", clientsH.Get)
			clients.POST("/:id/promote", middleware.RequireRole("admin"), clientsH.Promote)
		}

		cash := v1.Group("/cash")
		{
			cash.GET("/today", middleware.RequireRole("staff", "admin"), cashH.Today)
			cash.POST("/open", middleware.RequireRole("staff", "admin"), cashH.Open)
			cash.POST("/entries", middleware.RequireRole("staff", "admin"), cashH.PostEntry)
			cash.POST("/close", middleware.RequireRole("staff", "admin"), cashH.Close)
			cash.POST("/archive", middleware.RequireRole("admin"), cashH.Archive)
			cash.POST("/reset", middleware.RequireRole("admin"), cashH.Reset)
			cash.GET("/journal", middleware.RequireRole("staff", "admin"), cashH.Journal)
			cash.GET("/history", middleware.RequireRole("staff", "admin"), cashH.History)
			cash.GET("/totals", middleware.RequireRole("staff", "admin"), cashH.Totals)
		}

		// Catalog management — back-office listing includes inactive products
		v1.GET("/catalog/products", middleware.RequireRole("staff", "admin"), productsH.ListAll)
		prods := v1.Group("/products", middleware.RequireRole("admin"))
		{
			prods.POST("", productsH.Create)
			prods.PUT("/:id", productsH.Update)
			prods.DELETE("/:id", productsH.Deactivate)
			prods.PATCH("/:id/reactivate", productsH.Reactivate)
		}

		users := v1.Group("/users", middleware.RequireRole("admin"))
		{
			users.POST("", authH.CreateUser)
			users.GET("", authH.ListUsers)
			users.DELETE("/:id", authH.DeactivateUser)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
