// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/iaminawe/Mercury-Platform-sub001/internal/cache"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/config"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/handlers"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/middleware"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/services"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/shopify"
	"github.com/iaminawe/Mercury-Platform-sub001/internal/utils"
)

// Initialize wires services, handlers and routes. The returned dispatcher is
// started and stopped by the caller.
func Initialize(db *gorm.DB, progress *cache.ProgressCache, cfg *config.Config) (*gin.Engine, *services.Dispatcher) {
	// Initialize services
	clientFactory := shopify.NewClientFactory(cfg.Shopify)
	storeService := services.NewStoreService(db, clientFactory, cfg.Sync)
	aggregatorService := services.NewAggregatorService(db)
	conflictService := services.NewConflictService(db, storeService, clientFactory, nil, cfg.Sync)
	syncService := services.NewSyncService(db, storeService, aggregatorService, conflictService, clientFactory, progress, cfg.Sync)
	reportService := services.NewReportService(db, aggregatorService, cfg.AWS)
	authService := services.NewAuthService(db, cfg.JWT)

	dispatcher := services.NewDispatcher(syncService, cfg.Sync.QueueSize, cfg.Sync.Workers)
	syncService.SetDispatcher(dispatcher)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	storeHandler := handlers.NewStoreHandler(storeService)
	syncHandler := handlers.NewSyncHandler(syncService, storeService)
	conflictHandler := handlers.NewConflictHandler(conflictService)
	analyticsHandler := handlers.NewAnalyticsHandler(aggregatorService, reportService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"time":    time.Now().UTC(),
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		stores := v1.Group("/stores")
		stores.Use(middleware.AuthRequired())
		{
			stores.POST("", storeHandler.ConnectStore)
			stores.GET("", storeHandler.ListStores)
			stores.GET("/:id", storeHandler.GetStore)
			stores.POST("/:id/validate", storeHandler.ValidateStore)
			stores.GET("/:id/relationships", storeHandler.ListRelationships)
		}

		groups := v1.Group("/groups")
		groups.Use(middleware.AuthRequired())
		{
			groups.POST("", storeHandler.CreateGroup)
			groups.GET("/:id", storeHandler.GetGroup)
			groups.PUT("/:id", storeHandler.UpdateGroup)
			groups.POST("/:id/stores/:store_id", storeHandler.AddStoreToGroup)
			groups.DELETE("/:id/stores/:store_id", storeHandler.RemoveStoreFromGroup)
			groups.PUT("/:id/master/:store_id", storeHandler.SetMasterStore)

			groups.GET("/:id/analytics", analyticsHandler.GetGroupAnalytics)
			groups.GET("/:id/inventory/:inventory_id", analyticsHandler.GetUnifiedInventory)
			groups.GET("/:id/products/similar", analyticsHandler.FindSimilarProducts)
			groups.GET("/:id/customers/:email", analyticsHandler.GetUnifiedCustomer)
			groups.POST("/:id/reports/export", analyticsHandler.ExportReport)
			groups.POST("/:id/conflicts/scan", conflictHandler.ScanGroup)
		}

		relationships := v1.Group("/relationships")
		relationships.Use(middleware.AuthRequired())
		{
			relationships.POST("", storeHandler.CreateRelationship)
		}

		access := v1.Group("/access")
		access.Use(middleware.AuthRequired())
		{
			access.POST("", storeHandler.GrantAccess)
			access.DELETE("/:store_id/:user_id", storeHandler.RevokeAccess)
		}

		sync := v1.Group("/sync")
		sync.Use(middleware.AuthRequired())
		{
			sync.POST("/operations", middleware.SyncRateLimit(), syncHandler.InitiateSync)
			sync.GET("/operations", syncHandler.ListOperations)
			sync.GET("/operations/:id", syncHandler.GetOperationStatus)
			sync.POST("/operations/:id/cancel", syncHandler.CancelOperation)
		}

		conflicts := v1.Group("/conflicts")
		conflicts.Use(middleware.AuthRequired())
		{
			conflicts.GET("", conflictHandler.ListConflicts)
			conflicts.GET("/:id", conflictHandler.GetConflict)
			conflicts.POST("/:id/resolve", conflictHandler.ResolveConflict)
			conflicts.POST("/:id/ignore", conflictHandler.IgnoreConflict)
			conflicts.POST("/batch-resolve", conflictHandler.ResolveBatch)
		}
	}

	return r, dispatcher
}
