// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/cache"
	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/handlers"
	"github.com/vetlink/vetlink-backend/internal/middleware"
	"github.com/vetlink/vetlink-backend/internal/services"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, ruleCache *cache.RuleCache) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	statementService, err := services.NewStatementService(cfg)
	if err != nil {
		logrus.WithError(err).Warn("statement storage unavailable, closing statements disabled")
	}

	ruleService := services.NewRuleService(db, ruleCache)
	splitService := services.NewSplitService(db, cfg, ruleCache)
	ledgerService := services.NewLedgerService(db, cfg, notificationService, statementService)
	saleService := services.NewSaleService(db, splitService, ledgerService)
	gatewayService := services.NewGatewayService(db, cfg)

	// Initialize handlers
	ruleHandler := handlers.NewRuleHandler(ruleService)
	saleHandler := handlers.NewSaleHandler(saleService, gatewayService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, gatewayService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired())
	{
		// Commission rule management (clinic admins only)
		rules := v1.Group("/rules")
		rules.Use(middleware.ClinicAdminRequired())
		{
			rules.GET("", ruleHandler.ListRules)
			rules.POST("", ruleHandler.CreateRule)
			rules.PUT("/:id", ruleHandler.UpdateRule)
			rules.DELETE("/:id", ruleHandler.DeleteRule)
		}

		// Provider contract management (clinic admins only)
		contracts := v1.Group("/contracts")
		contracts.Use(middleware.ClinicAdminRequired())
		{
			contracts.GET("", ruleHandler.ListContracts)
			contracts.POST("", ruleHandler.CreateContract)
			contracts.DELETE("/:id", ruleHandler.DeactivateContract)
		}

		// Sales and settlement
		sales := v1.Group("/sales")
		{
			sales.POST("", saleHandler.CreateSale)
			sales.GET("/:id", saleHandler.GetSale)
			sales.GET("/:id/split-preview", saleHandler.PreviewSplit)
			sales.POST("/:id/finalize", saleHandler.FinalizeSale)
		}

		// Commission ledger
		ledger := v1.Group("/ledger")
		{
			ledger.GET("/summary", ledgerHandler.GetSummary)
			ledger.GET("/entries", ledgerHandler.ListEntries)
			ledger.GET("/batches", ledgerHandler.ListBatches)
			ledger.POST("/close", middleware.ClinicAdminRequired(), middleware.ClosingRateLimit(), ledgerHandler.ClosePeriod)
			ledger.POST("/disbursements/:id/retry", middleware.ClinicAdminRequired(), ledgerHandler.RetryDisbursement)
		}
	}

	return r
}
