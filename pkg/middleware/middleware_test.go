package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/iris/pkg/context"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = Error(logger)
	e.Use(Context())
	e.Use(Logger(logger))
	e.GET("/test", handler)
	return e
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{
			name:    "http error",
			err:     httperror.NewHTTPError(http.StatusBadRequest, "bad input"),
			code:    http.StatusBadRequest,
			message: "bad input",
		},
		{
			name:    "echo error",
			err:     echo.NewHTTPError(http.StatusUnsupportedMediaType, "nope"),
			code:    http.StatusUnsupportedMediaType,
			message: "nope",
		},
		{
			name:    "wrapped http error",
			err:     fmt.Errorf("identify: %w", httperror.NewHTTPError(http.StatusNotFound, "contact 7 not found")),
			code:    http.StatusNotFound,
			message: "contact 7 not found",
		},
		{
			name:    "plain error is hidden",
			err:     errors.New("pq: connection refused"),
			code:    http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(func(c echo.Context) error { return tt.err })
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(echo.HeaderXRequestID, "req-1")
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			require.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Message)
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, "req-1", body.RequestID)
		})
	}
}

func TestError_Meta(t *testing.T) {
	e := newTestServer(func(c echo.Context) error {
		err := httperror.NewHTTPError(http.StatusConflict, "busy")
		err.AddMetaValue("attempts", 3)
		return err
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body.Meta["attempts"])
}

func TestContext_GeneratesRequestID(t *testing.T) {
	var seen string
	e := newTestServer(func(c echo.Context) error {
		seen = context.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
}
