package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newErrorApp() *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    64,
		ErrorHandler: ErrorHandler,
	})
	app.Use(recover.New())
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("dial tcp 10.0.0.7:3306: connect: connection refused")
	})
	app.Get("/failing", func(c *fiber.Ctx) error {
		return io.ErrUnexpectedEOF
	})
	app.Post("/echo", func(c *fiber.Ctx) error {
		return c.Send(c.Body())
	})
	return app
}

func errorBody(t *testing.T, resp *http.Response) (string, map[string]any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return string(raw), body
}

func TestErrorHandlerHidesPanicText(t *testing.T) {
	resp, err := newErrorApp().Test(httptest.NewRequest(http.MethodGet, "/panic", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)
	raw, body := errorBody(t, resp)
	assert.Equal(t, map[string]any{"ok": false, "error": "internal_error"}, body)
	assert.NotContains(t, raw, "3306")
}

func TestErrorHandlerHidesPlainErrors(t *testing.T) {
	resp, err := newErrorApp().Test(httptest.NewRequest(http.MethodGet, "/failing", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	raw, _ := errorBody(t, resp)
	assert.NotContains(t, raw, "unexpected EOF")
}

func TestErrorHandlerKeepsFiberStatus(t *testing.T) {
	app := newErrorApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	_, body := errorBody(t, resp)
	assert.Equal(t, "not_found", body["error"])

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(make([]byte, 128))), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
	_, body = errorBody(t, resp)
	assert.Equal(t, map[string]any{"ok": false, "error": "payload_too_large"}, body)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "internal_error", errorCode(fiber.StatusBadGateway))
	assert.Equal(t, "rate_limited", errorCode(fiber.StatusTooManyRequests))
	assert.Equal(t, "bad_request", errorCode(fiber.StatusUnprocessableEntity))
}
