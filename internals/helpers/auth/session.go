package helperAuth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"feeledger_backend/internals/constants"
)

// Locals keys hydrated by the JWT middleware.
const (
	LocRole      = "role"
	LocUserID    = "user_id"
	LocSchoolID  = "school_id"
	LocStudentID = "student_id"
	LocSession   = "session"
)

// Session is the caller identity. It is resolved once per request and passed
// explicitly into every service call; services never read fiber locals.
type Session struct {
	UserID    uuid.UUID
	Role      string
	SchoolID  uuid.UUID
	StudentID uuid.UUID // zero unless Role == STUDENT
}

func (s Session) IsStudent() bool    { return s.Role == constants.RoleStudent }
func (s Session) IsSuperAdmin() bool { return s.Role == constants.RoleSuperAdmin }
func (s Session) IsAdmin() bool {
	return s.Role == constants.RoleSchoolAdmin || s.Role == constants.RoleSuperAdmin
}

// Scope is the tenant boundary for a service call: every ledger and payment
// read or write is restricted to SchoolID, and to StudentID when it is set.
type Scope struct {
	SchoolID  uuid.UUID
	StudentID uuid.UUID
	ActorID   uuid.UUID
	Role      string
}

// StudentScope: a student acting on their own ledger.
func (s Session) StudentScope() Scope {
	return Scope{SchoolID: s.SchoolID, StudentID: s.StudentID, ActorID: s.UserID, Role: s.Role}
}

// SchoolScope: an admin acting on schoolID. Callers must have checked
// CanManageSchool first.
func (s Session) SchoolScope(schoolID uuid.UUID) Scope {
	return Scope{SchoolID: schoolID, ActorID: s.UserID, Role: s.Role}
}

// CanManageSchool: superadmin for any school, school admin only for their own.
func (s Session) CanManageSchool(schoolID uuid.UUID) bool {
	if s.IsSuperAdmin() {
		return true
	}
	return s.Role == constants.RoleSchoolAdmin && s.SchoolID != uuid.Nil && s.SchoolID == schoolID
}

// Restricts reports whether the scope is pinned to one student.
func (sc Scope) Restricts() bool { return sc.StudentID != uuid.Nil }

// SessionFromCtx builds the Session from locals set by the JWT middleware.
func SessionFromCtx(c *fiber.Ctx) (Session, error) {
	if v, ok := c.Locals(LocSession).(Session); ok {
		return v, nil
	}

	userID, err := parseLocalUUID(c, LocUserID)
	if err != nil || userID == uuid.Nil {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "user_id missing from token")
	}
	role := constants.NormalizeRole(localString(c, LocRole))
	if role == "" {
		return Session{}, fiber.NewError(fiber.StatusForbidden, "role missing from token")
	}
	schoolID, err := parseLocalUUID(c, LocSchoolID)
	if err != nil {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "school_id in token is not a uuid")
	}
	studentID, err := parseLocalUUID(c, LocStudentID)
	if err != nil {
		return Session{}, fiber.NewError(fiber.StatusUnauthorized, "student_id in token is not a uuid")
	}

	if role == constants.RoleStudent && (studentID == uuid.Nil || schoolID == uuid.Nil) {
		return Session{}, fiber.NewError(fiber.StatusForbidden, "student token without student_id/school_id")
	}
	if role == constants.RoleSchoolAdmin && schoolID == uuid.Nil {
		return Session{}, fiber.NewError(fiber.StatusForbidden, "admin token without school_id")
	}

	s := Session{UserID: userID, Role: role, SchoolID: schoolID, StudentID: studentID}
	c.Locals(LocSession, s)
	return s, nil
}

// SchoolIDFromPath reads :school_id.
func SchoolIDFromPath(c *fiber.Ctx) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Params("school_id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "school_id is not a valid uuid")
	}
	return id, nil
}

func localString(c *fiber.Ctx, key string) string {
	switch v := c.Locals(key).(type) {
	case string:
		return strings.TrimSpace(v)
	case uuid.UUID:
		return v.String()
	}
	return ""
}

func parseLocalUUID(c *fiber.Ctx, key string) (uuid.UUID, error) {
	if v, ok := c.Locals(key).(uuid.UUID); ok {
		return v, nil
	}
	s := localString(c, key)
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
