package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tgsessions/internal/auth"
	"github.com/vovakirdan/tgsessions/internal/config"
)

// requestsPerMinute caps control requests.
const requestsPerMinute = 600

// NewServer builds the control API server. Requests need a bearer token when jwtCfg is set.
func NewServer(sessions Sessions, cfg *config.Config, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	handlers := NewSessionHandlers(sessions, logger)
	api := router.Group("/api")
	api.Use(RateLimitMiddleware(newRateLimiter(requestsPerMinute)))
	if jwtCfg != nil {
		api.Use(AuthMiddleware(jwtCfg, logger))
	}
	api.GET("/sessions", handlers.List)
	api.POST("/sessions", handlers.Add)
	api.POST("/sessions/:index/activate", handlers.Activate)
	api.PUT("/online", handlers.SetOnline)

	return &stdhttp.Server{
		Addr:              cfg.ControlAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
