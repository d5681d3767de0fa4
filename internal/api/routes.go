package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Encore Sync API
// @version 1.0
// @description API for importing and resyncing artist catalogs, shows and setlists
// @contact.name API Support
// @contact.url http://github.com/encorehq
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the cron secret.

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	r.GET("/health", h.HealthCheck)

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/artists", h.CreateArtist)

		artists := v1.Group("/artists/:id")
		{
			artists.POST("/import", h.TriggerImport)
			artists.GET("/import/status", h.GetImportStatus)
			artists.GET("/import/stream", h.StreamImportProgress)
		}

		v1.GET("/imports/active", h.ListActiveImports)

		admin := v1.Group("/admin")
		{
			admin.POST("/resync", h.TriggerResync)
		}
	}

	return r
}
