package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// writeError replies with the safe part of err. The full error, op and cause
// included, is attached to the context for the request log.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(utils.HTTPStatus(err), APIError{
		Code:    utils.CodeOf(err),
		Message: utils.SafeMessage(err),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}
