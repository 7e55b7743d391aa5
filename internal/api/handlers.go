package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/ingest"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/freshness-monitor/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Handler handles reading and engine API requests.
type Handler struct {
	monitor Monitor
	log     logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(monitor Monitor, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		monitor: monitor,
		log:     log.WithField("component", "api"),
	}
}

// readReading decodes a device payload from the request body.
func (h *Handler) readReading(c echo.Context) (models.Reading, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, NewBadRequestError("failed to read request body", err)
	}
	reading, err := ingest.Decode(body)
	if err != nil {
		return nil, NewBadRequestError("invalid reading payload", err)
	}
	return reading, nil
}

// HandleSubmitReading evaluates one reading and returns its result.
func (h *Handler) HandleSubmitReading(c echo.Context) error {
	reading, err := h.readReading(c)
	if err != nil {
		return err
	}

	result, err := h.monitor.Process(c.Request().Context(), reading)
	if err != nil {
		if errors.Is(err, evaluator.ErrMissingChannel) {
			return NewValidationError(err)
		}
		return NewInternalError("failed to evaluate reading", err)
	}
	return c.JSON(http.StatusCreated, result)
}

// HandleLatestReading returns the newest stored result.
func (h *Handler) HandleLatestReading(c echo.Context) error {
	result, err := h.monitor.Latest(c.Request().Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("reading")
		}
		return NewInternalError("failed to load latest reading", err)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleListReadings returns stored results, newest first.
func (h *Handler) HandleListReadings(c echo.Context) error {
	results, err := h.history(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"readings": results,
		"count":    len(results),
	})
}

// HandleListReadingsMsgpack returns stored results encoded as MessagePack.
func (h *Handler) HandleListReadingsMsgpack(c echo.Context) error {
	results, err := h.history(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(map[string]interface{}{
		"readings": results,
		"count":    len(results),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *Handler) history(c echo.Context) ([]*models.Result, error) {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return nil, err
	}
	results, err := h.monitor.History(c.Request().Context(), limit)
	if err != nil {
		return nil, NewInternalError("failed to load readings", err)
	}
	if results == nil {
		results = []*models.Result{}
	}
	return results, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, NewBadRequestError("limit must be a positive integer", err)
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

// HandleEngineStatus reports the engine's learning state.
func (h *Handler) HandleEngineStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.monitor.Status())
}

// HandleEngineThresholds reports default and current ranges per channel.
func (h *Handler) HandleEngineThresholds(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"thresholds": h.monitor.Thresholds(),
	})
}

// HandleEngineReset clears the learned baseline.
func (h *Handler) HandleEngineReset(c echo.Context) error {
	h.monitor.Reset()
	h.log.Info("engine reset requested")
	return c.JSON(http.StatusOK, h.monitor.Status())
}

// HandleEngineObserve adds a labelled sample to the baseline without
// evaluating it.
func (h *Handler) HandleEngineObserve(c echo.Context) error {
	reading, err := h.readReading(c)
	if err != nil {
		return err
	}
	if err := h.monitor.Observe(reading); err != nil {
		if errors.Is(err, evaluator.ErrMissingChannel) {
			return NewValidationError(err)
		}
		return NewInternalError("failed to record sample", err)
	}
	return c.JSON(http.StatusAccepted, h.monitor.Status())
}
