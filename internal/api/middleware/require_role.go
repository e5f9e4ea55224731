package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
)

// RequireRole reads the caller's role from the profile store on every
// request and sets it as "role". Must run after JWTAuth.
func RequireRole(lookup auth.RoleLookup, min models.Role) gin.HandlerFunc {
	const op = "RequireRole"

	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			abort(c, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil))
			return
		}

		role, err := lookup.RoleOf(c.Request.Context(), userID)
		switch {
		case errors.Is(err, utils.ErrNotFound) || utils.IsCode(err, utils.CodeNotFound):
			abort(c, utils.E(utils.CodeForbidden, op, "forbidden", err))
			return
		case err != nil:
			abort(c, utils.E(utils.CodeUnavailable, op, "failed to check role", err))
			return
		}

		if !role.AtLeast(min) {
			abort(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
			return
		}

		c.Set("role", string(role))
		c.Next()
	}
}

func RequireAdmin(lookup auth.RoleLookup) gin.HandlerFunc {
	return RequireRole(lookup, models.RoleAdmin)
}
