package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/iris/config"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:            "iris-test",
		Version:            "test",
		AllowOrigins:       []string{"*"},
		AllowMethods:       []string{"GET", "POST"},
		StartupMaxAttempts: 1,
		StoreDriver:        config.StoreDriverMemory,
		TraversalBatchSize: 2,
		LockBackend:        config.LockBackendLocal,
		LockWait:           time.Second,
		LockMaxAttempts:    3,
	}
}

func TestServer_MemoryStore(t *testing.T) {
	cfg := testConfig()
	a := newApp(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	e := newServer(cfg, a)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodPost, "/identify", `{"email":"george@hillvalley.edu","phoneNumber":"919191"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(http.MethodPost, "/identify", `{"email":"biffsucks@hillvalley.edu","phoneNumber":"717171"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodPost, "/identify", `{"email":"george@hillvalley.edu","phoneNumber":"717171"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contact":{"primaryContatctId":1,"emails":["george@hillvalley.edu","biffsucks@hillvalley.edu"],"phoneNumbers":["919191","717171"],"secondaryContactIds":[2]}}`, rec.Body.String())

	rec = do(http.MethodPost, "/identify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iris_")
}

func TestNewZapLogger(t *testing.T) {
	cfg := testConfig()
	cfg.LogLevel = "debug"
	l, err := newZapLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, l)

	cfg.LogLevel = "loud"
	_, err = newZapLogger(cfg)
	assert.Error(t, err)
}
