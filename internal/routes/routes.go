package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"charter-reconciliation-backend/internal/config"
	handler "charter-reconciliation-backend/internal/handlers"
	service "charter-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.MatchingConfig) {
	reconService := service.NewService(db, cfg)
	reconHandler := handler.NewReconciliationHandler(reconService)

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	feeds := api.Group("/feeds")
	feeds.POST("/upload", reconHandler.UploadFeed)

	recon := api.Group("/reconciliation")
	recon.GET("/:batchId", reconHandler.GetBatch)
	recon.GET("/:batchId/transactions", reconHandler.ListTransactions)
	recon.POST("/:batchId/preview", reconHandler.PreviewRun)
	recon.POST("/:batchId/apply", reconHandler.ApplyRun)
	recon.POST("/:batchId/rollback", reconHandler.RollbackBatch)

	tx := api.Group("/transactions")
	tx.POST("/:id/match", reconHandler.ManualMatch)
	tx.POST("/:id/unlink", reconHandler.Unlink)

	bookings := api.Group("/bookings")
	bookings.GET("/:id/balance", reconHandler.BookingBalance)
}
