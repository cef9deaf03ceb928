package auth

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin         = "admin"
	RoleHospitalAdmin = "hospital_admin"
	RoleSecretary     = "secretary"
	RoleDoctor        = "doctor"
	RolePatient       = "patient"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// admin passes every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, has := range userRoles {
				if has == RoleAdmin || slices.Contains(roles, has) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireOwnDoctor keeps doctor accounts to their own schedule: a caller
// whose only relevant role is doctor must carry a doctor_id claim equal to
// the :param path value. Other roles pass.
func RequireOwnDoctor(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			roles := RolesFromContext(ctx)
			if !slices.Contains(roles, RoleDoctor) {
				return next(c)
			}
			for _, r := range roles {
				if r != RoleDoctor && r != RolePatient {
					return next(c)
				}
			}
			if own := DoctorIDFromContext(ctx); own != "" && strings.EqualFold(own, c.Param(param)) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "doctors may only manage their own schedule")
		}
	}
}
