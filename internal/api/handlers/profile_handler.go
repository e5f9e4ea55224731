package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/utils"
)

type ProfileHandler struct {
	svc services.ProfileService
}

func NewProfileHandler(svc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

type profileResponse struct {
	*models.Profile
	AvatarSrc string `json:"avatar_src,omitempty"`
}

func (h *ProfileHandler) respond(c *gin.Context, p *models.Profile) {
	c.JSON(http.StatusOK, profileResponse{Profile: p, AvatarSrc: h.svc.AvatarURL(p.AvatarURL)})
}

func (h *ProfileHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetMe(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respond(c, p)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.UpdateProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ProfileHandler.Update", "invalid request body", err))
		return
	}

	p, err := h.svc.Update(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respond(c, p)
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	const op = "ProfileHandler.UploadAvatar"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	up, done, err := imageUpload(c, op, "file")
	if err != nil {
		writeError(c, err)
		return
	}
	defer done()
	if up == nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'file'", nil))
		return
	}

	p, err := h.svc.UploadAvatar(c.Request.Context(), userID, up)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respond(c, p)
}

// Upgrade is the simulated subscription checkout.
func (h *ProfileHandler) Upgrade(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.UpgradeSubscription(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respond(c, p)
}
