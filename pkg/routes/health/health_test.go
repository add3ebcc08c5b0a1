package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoot(t *testing.T) {
	rec := serve(t, NewChecker("test"), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	rec := serve(t, c, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["database"].Status)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestReady(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("database", func(context.Context) error { return nil })

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, c, "/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(t, c, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, c, "/health/live").Code)
}
