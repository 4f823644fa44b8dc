package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger_backend/internals/constants"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

// withSession stands in for AuthJWT.
func withSession(s helperAuth.Session) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(helperAuth.LocSession, s)
		return c.Next()
	}
}

func status(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestIsSchoolAdmin(t *testing.T) {
	school := uuid.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

	tests := []struct {
		name string
		sess helperAuth.Session
		path string
		want int
	}{
		{"own school", helperAuth.Session{UserID: uuid.New(), Role: constants.RoleSchoolAdmin, SchoolID: school}, school.String(), fiber.StatusNoContent},
		{"other school", helperAuth.Session{UserID: uuid.New(), Role: constants.RoleSchoolAdmin, SchoolID: uuid.New()}, school.String(), fiber.StatusForbidden},
		{"superadmin", helperAuth.Session{UserID: uuid.New(), Role: constants.RoleSuperAdmin}, school.String(), fiber.StatusNoContent},
		{"student", helperAuth.Session{UserID: uuid.New(), Role: constants.RoleStudent, SchoolID: school, StudentID: uuid.New()}, school.String(), fiber.StatusForbidden},
		{"bad path", helperAuth.Session{UserID: uuid.New(), Role: constants.RoleSuperAdmin}, "nope", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/a/:school_id", withSession(tt.sess), IsSchoolAdmin(), ok)
			assert.Equal(t, tt.want, status(t, app, "/a/"+tt.path))
		})
	}
}

func TestOnlyStudent(t *testing.T) {
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

	app := fiber.New()
	app.Get("/u", withSession(helperAuth.Session{UserID: uuid.New(), Role: constants.RoleStudent, SchoolID: uuid.New(), StudentID: uuid.New()}), OnlyStudent(), ok)
	assert.Equal(t, fiber.StatusNoContent, status(t, app, "/u"))

	app = fiber.New()
	app.Get("/u", withSession(helperAuth.Session{UserID: uuid.New(), Role: constants.RoleSchoolAdmin, SchoolID: uuid.New()}), OnlyStudent(), ok)
	assert.Equal(t, fiber.StatusForbidden, status(t, app, "/u"))

	// no session at all
	app = fiber.New()
	app.Get("/u", OnlyStudent(), ok)
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, "/u"))
}
