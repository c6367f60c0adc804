package server

import (
	"net/http"

	"MediSync_V1.0/internal/auth"
	"MediSync_V1.0/internal/patient"
	"MediSync_V1.0/internal/utility"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Platform"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.Use(LoggerMiddleware)

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", s.metrics.Handler())

	// Protected routes
	protected := e.Group("")
	protected.Use(auth.JwtAuthMiddleware)
	protected.Use(RateLimitMiddleware)

	// Clinical parameter reconciliation
	protected.GET("/patients/clinical", patient.GetClinicalParametersHandler)
	protected.PUT("/patients/clinical", patient.SaveClinicalParametersHandler)

	// Free-text history
	protected.GET("/patients/history", patient.GetClinicalHistoryHandler)
	protected.POST("/patients/history", patient.AppendClinicalHistoryHandler)

	// Refresh push socket for the mobile clients
	protected.GET("/patients/ws", patient.ClinicalSocketHandler)

	return e
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.db.Health())
}

// LoggerMiddleware attaches a request-scoped logger carrying the request ID.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := log.With().Str("request_id", requestID).Logger()

		c.Set("logger", &logger)

		return next(c)
	}
}

// RateLimitMiddleware applies the per-IP sliding window to API calls.
func RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := utility.CheckIPRateLimit(utility.GetRealIP(c)); err != nil {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		}
		return next(c)
	}
}
