// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Monitor Monitor
	Hub     *Hub
	Version string
	Log     logrus.FieldLogger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Reading ReadingHandler
	Engine  EngineHandler
	Live    LiveHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := NewHandler(deps.Monitor, deps.Log)
	handlers := &Handlers{
		Health:  NewHealthHandler(deps.Version),
		Reading: h,
		Engine:  h,
	}
	if deps.Hub != nil {
		handlers.Live = deps.Hub
	}
	return handlers
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Readings
	readingGroup := apiGroup.Group("/readings")
	readingGroup.POST("", handlers.Reading.HandleSubmitReading)
	readingGroup.GET("", handlers.Reading.HandleListReadings)
	readingGroup.GET("/latest", handlers.Reading.HandleLatestReading)
	readingGroup.GET("/msgpack", handlers.Reading.HandleListReadingsMsgpack)

	// Engine control
	engineGroup := apiGroup.Group("/engine")
	engineGroup.GET("/status", handlers.Engine.HandleEngineStatus)
	engineGroup.GET("/thresholds", handlers.Engine.HandleEngineThresholds)
	engineGroup.POST("/reset", handlers.Engine.HandleEngineReset)
	engineGroup.POST("/observe", handlers.Engine.HandleEngineObserve)

	// Live feed
	if handlers.Live != nil {
		apiGroup.GET("/ws/readings", handlers.Live.HandleWebSocket)
	}
}

// MiddlewareOptions selects the common middleware.
type MiddlewareOptions struct {
	Log            logrus.FieldLogger
	RequestLogging bool
	ShowErrors     bool
	EnableCORS     bool
	AllowOrigins   string
	BodyLimit      string
	Timeout        time.Duration
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	e.HTTPErrorHandler = NewErrorHandler(log, opts.ShowErrors)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || isWebSocket(c)
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
			} else {
				entry.Info("request")
			}
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.Timeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      opts.Timeout,
			Skipper:      isWebSocket,
			ErrorMessage: "Request timeout",
		}))
	}

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: isWebSocket,
	}))

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: splitOrigins(opts.AllowOrigins),
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}

func isWebSocket(c echo.Context) bool {
	return strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), "websocket")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
