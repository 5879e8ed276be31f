package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newOperatorApp(t *testing.T, hash string) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/op", OperatorKeyMiddleware(hash), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestOperatorKeyMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-key"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name    string
		hash    string
		headers map[string]string
		want    int
	}{
		{name: "not configured", hash: "", headers: map[string]string{"X-API-Key": "operator-key"}, want: fiber.StatusServiceUnavailable},
		{name: "missing key", hash: string(hash), want: fiber.StatusUnauthorized},
		{name: "wrong key", hash: string(hash), headers: map[string]string{"X-API-Key": "nope"}, want: fiber.StatusUnauthorized},
		{name: "header key", hash: string(hash), headers: map[string]string{"X-API-Key": "operator-key"}, want: fiber.StatusOK},
		{name: "bearer key", hash: string(hash), headers: map[string]string{"Authorization": "Bearer operator-key"}, want: fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newOperatorApp(t, tt.hash)
			req := httptest.NewRequest("GET", "/op", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
