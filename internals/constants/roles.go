package constants

import (
	"fmt"
	"strings"
)

const (
	RoleStudent     = "STUDENT"
	RoleSchoolAdmin = "SCHOOLADMIN"
	RoleSuperAdmin  = "SUPERADMIN"
)

// Role error templates
const (
	ErrOnlyStudentsCanAccess = "only students may access %s"
	ErrOnlyAdminsCanAccess   = "only school admins may access %s"
	ErrOtherSchool           = "not allowed to access another school's %s"
)

func RoleErrorStudent(feature string) string {
	return fmt.Sprintf(ErrOnlyStudentsCanAccess, feature)
}

func RoleErrorAdmin(feature string) string {
	return fmt.Sprintf(ErrOnlyAdminsCanAccess, feature)
}

func RoleErrorOtherSchool(feature string) string {
	return fmt.Sprintf(ErrOtherSchool, feature)
}

var (
	AllRoles = []string{
		RoleStudent,
		RoleSchoolAdmin,
		RoleSuperAdmin,
	}

	AdminRoles = []string{
		RoleSchoolAdmin,
		RoleSuperAdmin,
	}
)

// NormalizeRole accepts the lower-case and legacy spellings found in tokens
// ("school_admin", "admin", "superadmin") and returns the canonical role or "".
func NormalizeRole(raw string) string {
	r := strings.ToUpper(strings.TrimSpace(raw))
	r = strings.ReplaceAll(r, "_", "")
	switch r {
	case RoleStudent:
		return RoleStudent
	case RoleSchoolAdmin, "ADMIN":
		return RoleSchoolAdmin
	case RoleSuperAdmin, "OWNER":
		return RoleSuperAdmin
	}
	return ""
}
