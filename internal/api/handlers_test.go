package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freshness-monitor/backend/internal/evaluator"
	"github.com/freshness-monitor/backend/internal/logging"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/freshness-monitor/backend/internal/monitor"
	"github.com/freshness-monitor/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	normalPayload = `{"suhu": 27, "kelembapan": 65, "mq2": 45, "mq3": 30, "mq135": 40}`
	hotPayload    = `{"suhu": 50, "kelembapan": 65, "mq2": 45, "mq3": 30, "mq135": 40}`
)

func newTestServer(t *testing.T) (*echo.Echo, *monitor.Service) {
	t.Helper()
	log := logging.Discard()
	svc := monitor.NewService(evaluator.NewDefault(), storage.NewMemoryStore(100), log)

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(log, true)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Monitor: svc,
		Hub:     NewHub(64, log),
		Version: "test",
		Log:     log,
	}))
	return e, svc
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmitReading(t *testing.T) {
	e := echo.New()
	svc := monitor.NewService(evaluator.NewDefault(), nil, logging.Discard())
	h := NewHandler(svc, logging.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/readings", strings.NewReader(hotPayload))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if assert.NoError(t, h.HandleSubmitReading(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)

		var res models.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, models.StatusUnacceptable, res.Status)
		assert.Equal(t, 50.0, res.Values[models.ChannelTemperature])
		assert.Contains(t, res.Explanation, "temperature too high (50 > 35)")
		assert.Equal(t, 1, res.ReadingCount)
	}
}

func TestHandleSubmitReading_Errors(t *testing.T) {
	e := echo.New()
	svc := monitor.NewService(evaluator.NewDefault(), nil, logging.Discard())
	h := NewHandler(svc, logging.Discard())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `hello`, "BAD_REQUEST"},
		{"array", `[1,2,3]`, "BAD_REQUEST"},
		{"missing channel", `{"suhu": 27, "kelembapan": 65}`, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/readings", strings.NewReader(tt.body))
			c := e.NewContext(req, httptest.NewRecorder())

			err := h.HandleSubmitReading(c)
			apiErr, ok := err.(*APIError)
			require.True(t, ok, "expected *APIError, got %T", err)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
	assert.Equal(t, 0, svc.Status().TotalReadings)
}

func TestReadingRoutes(t *testing.T) {
	e, _ := newTestServer(t)

	// 1. Nothing stored yet
	rec := doRequest(e, http.MethodGet, "/api/readings/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)

	// 2. Submit two readings
	rec = doRequest(e, http.MethodPost, "/api/readings", normalPayload)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(e, http.MethodPost, "/api/readings", hotPayload)
	require.Equal(t, http.StatusCreated, rec.Code)

	// 3. Latest is the second
	rec = doRequest(e, http.MethodGet, "/api/readings/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest models.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, models.StatusUnacceptable, latest.Status)

	// 4. History is newest first
	rec = doRequest(e, http.MethodGet, "/api/readings?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Readings []models.Result `json:"readings"`
		Count    int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 2, list.Readings[0].ReadingCount)
	assert.Equal(t, 1, list.Readings[1].ReadingCount)

	// 5. Bad limit
	rec = doRequest(e, http.MethodGet, "/api/readings?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 6. Missing channel over HTTP
	rec = doRequest(e, http.MethodPost, "/api/readings", `{"suhu": 27}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "humidity")
}

func TestHandleListReadingsMsgpack(t *testing.T) {
	e, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(e, http.MethodPost, "/api/readings", normalPayload).Code)

	rec := doRequest(e, http.MethodGet, "/api/readings/msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var decoded struct {
		Readings []models.Result `msgpack:"readings"`
		Count    int             `msgpack:"count"`
	}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.Count)
	require.Len(t, decoded.Readings, 1)
	assert.Equal(t, 27.0, decoded.Readings[0].Values[models.ChannelTemperature])
	assert.Equal(t, models.ChannelTemperature, decoded.Readings[0].Verdicts[0].Channel)
}

func TestEngineRoutes(t *testing.T) {
	e, svc := newTestServer(t)

	// Observe does not produce results
	rec := doRequest(e, http.MethodPost, "/api/engine/observe", normalPayload)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, svc.Status().TotalReadings)
	assert.Equal(t, http.StatusNotFound, doRequest(e, http.MethodGet, "/api/readings/latest", "").Code)

	rec = doRequest(e, http.MethodGet, "/api/engine/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalReadings":1`)
	assert.Contains(t, rec.Body.String(), `"temperature":1`)

	rec = doRequest(e, http.MethodGet, "/api/engine/thresholds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var th struct {
		Thresholds []models.ChannelThreshold `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &th))
	require.Len(t, th.Thresholds, models.NumChannels)
	assert.Equal(t, models.ChannelHumidity, th.Thresholds[1].Channel)
	assert.Equal(t, 40.0, th.Thresholds[1].Current.Min)

	rec = doRequest(e, http.MethodPost, "/api/engine/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.Status().TotalReadings)

	rec = doRequest(e, http.MethodPost, "/api/engine/observe", `{"suhu": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doRequest(e, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"10", 10, false},
		{"100000", 500, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		assert.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
