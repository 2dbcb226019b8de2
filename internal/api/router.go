package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter mounts the service routes under prefix (e.g. /project).
func NewRouter(prefix string, predictor Predictor) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", REQUEST_ID_HEADER}
	corsConfig.ExposeHeaders = []string{REQUEST_ID_HEADER}

	router.Use(RequestID())
	router.Use(Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Not Found"})
	})

	predictHandler := NewPredictHandler(predictor)

	project := router.Group(prefix)
	{
		project.GET("/health", Health)
		project.GET("/hello", Hello)
		project.POST("/bulk-predict", predictHandler.BulkPredict)
	}

	return router
}
