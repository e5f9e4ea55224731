package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(utils.HTTPStatus(err), apiError{
		Code:    utils.CodeOf(err),
		Message: utils.SafeMessage(err),
	})
}

// JWTAuth verifies the bearer token and sets user_id and email on the
// context. Browsers cannot set headers on a websocket handshake, so upgrade
// requests may pass the token as ?access_token= instead.
func JWTAuth(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok && websocket.IsWebSocketUpgrade(c.Request) {
			raw = c.Query("access_token")
			ok = raw != ""
		}
		if !ok {
			abort(c, utils.E(utils.CodeUnauthorized, "JWTAuth", "missing bearer token", nil))
			return
		}

		id, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set("user_id", id.UserID)
		c.Set("email", id.Email)
		c.Next()
	}
}
