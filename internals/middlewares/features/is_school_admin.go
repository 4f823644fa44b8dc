package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"feeledger_backend/internals/constants"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

// IsSchoolAdmin guards /api/a/:school_id routes: superadmin for any school,
// SCHOOLADMIN only when :school_id is the school in their token.
func IsSchoolAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := helperAuth.SessionFromCtx(c)
		if err != nil {
			return err
		}
		if !s.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, constants.RoleErrorAdmin("fee administration"))
		}
		schoolID, err := helperAuth.SchoolIDFromPath(c)
		if err != nil {
			return err
		}
		if !s.CanManageSchool(schoolID) {
			log.Printf("[WARN] user %s (%s) denied on school %s", s.UserID, s.Role, schoolID)
			return fiber.NewError(fiber.StatusForbidden, constants.RoleErrorOtherSchool("fees"))
		}
		return c.Next()
	}
}

// OnlyStudent guards the student portal routes.
func OnlyStudent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := helperAuth.SessionFromCtx(c)
		if err != nil {
			return err
		}
		if !s.IsStudent() {
			return fiber.NewError(fiber.StatusForbidden, constants.RoleErrorStudent("the student fee portal"))
		}
		return c.Next()
	}
}
