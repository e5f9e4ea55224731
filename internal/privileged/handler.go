package privileged

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/auth"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
)

// Handle exposes op as a POST endpoint: 200 {"message"} on success, 400
// {"error"} for every failure kind.
func Handle[P Payload](g *Guard, log *logrus.Logger, name string, op Operation[P]) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("action", name)
		entry := log.WithFields(logrus.Fields{
			"action":     name,
			"request_id": c.GetString("request_id"),
		})

		var p P
		if err := c.ShouldBindJSON(&p); err != nil {
			fail(c, entry, utils.E(utils.CodeInvalidArgument, name, "invalid request body", err))
			return
		}

		credential, _ := auth.BearerToken(c.GetHeader("Authorization"))
		msg, err := Run(c.Request.Context(), g, credential, p, op)
		if err != nil {
			fail(c, entry, err)
			return
		}

		c.JSON(http.StatusOK, models.ActionResult{Message: msg})
	}
}

func fail(c *gin.Context, entry *logrus.Entry, err error) {
	code := utils.CodeOf(err)
	_ = c.Error(err)
	entry = entry.WithField("code", code).WithError(err)
	if code == utils.CodeUnavailable || code == utils.CodeInternal {
		entry.Error("privileged action failed")
	} else {
		entry.Warn("privileged action rejected")
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": utils.SafeMessage(err)})
}
