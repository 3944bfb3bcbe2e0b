package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type staffRole string

func (r staffRole) String() string { return string(r) }

func newStaffGroupApp(role interface{}) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != nil {
			c.Locals("user_role", role)
		}
		return c.Next()
	})

	sessions := app.Group("/grade-sessions", RequireRole("admin", " Teacher "))
	sessions.Get("/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	sessions.Post("/:id/save", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAdmitsStaffOnGradeSessions(t *testing.T) {
	for _, role := range []interface{}{"admin", "teacher", "TEACHER ", staffRole("Admin")} {
		app := newStaffGroupApp(role)
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			path := "/grade-sessions/abc"
			if method == http.MethodPost {
				path += "/save"
			}
			resp, err := app.Test(httptest.NewRequest(method, path, nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode, "%v %s", role, method)
		}
	}
}

func TestRequireRoleRejectsNonStaffOnGradeSessions(t *testing.T) {
	for _, role := range []interface{}{nil, "", "student", 42} {
		app := newStaffGroupApp(role)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/grade-sessions/abc", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode, "%v", role)
	}
}
