package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the route handlers.
type Handlers struct {
	Student    *StudentHandler
	Instructor *InstructorHandler
	WS         *WSHandler
}

// RouterConfig holds the router settings taken from config.
type RouterConfig struct {
	GinMode        string
	AllowedOrigins []string
}

// NewRouter wires every route. Instructor routes require a Bearer token.
func NewRouter(cfg RouterConfig, h Handlers, instructorAuth gin.HandlerFunc) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))
	router.Use(RequestID())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.WS.Serve)

	api := router.Group("/api")
	{
		api.GET("/quiz", h.Student.GetQuiz)
		api.POST("/students", h.Student.Register)
		api.GET("/results/:studentId", h.Student.Result)
		api.POST("/instructor/login", h.Instructor.Login)
	}

	instructor := api.Group("/instructor")
	instructor.Use(instructorAuth)
	{
		instructor.GET("/submissions", h.Instructor.Submissions)
		instructor.GET("/stats", h.Instructor.Stats)
		instructor.GET("/release", h.Instructor.ReleaseStatus)
		instructor.POST("/release", h.Instructor.Release)
	}
	return router
}
