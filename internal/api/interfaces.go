// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ReadingHandler handles reading submission and result history
type ReadingHandler interface {
	HandleSubmitReading(c echo.Context) error
	HandleLatestReading(c echo.Context) error
	HandleListReadings(c echo.Context) error
	HandleListReadingsMsgpack(c echo.Context) error
}

// EngineHandler handles evaluation engine inspection and control
type EngineHandler interface {
	HandleEngineStatus(c echo.Context) error
	HandleEngineThresholds(c echo.Context) error
	HandleEngineReset(c echo.Context) error
	HandleEngineObserve(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// LiveHandler streams results to dashboard clients
type LiveHandler interface {
	HandleWebSocket(c echo.Context) error
}

// Monitor defines what the handlers need from the evaluation service.
// This allows mocking in tests
type Monitor interface {
	Process(ctx context.Context, reading models.Reading) (*models.Result, error)
	Observe(reading models.Reading) error
	Reset()
	Status() models.EngineStatus
	Thresholds() []models.ChannelThreshold
	Latest(ctx context.Context) (*models.Result, error)
	History(ctx context.Context, limit int) ([]*models.Result, error)
}
