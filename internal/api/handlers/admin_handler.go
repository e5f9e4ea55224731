package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/services"
)

type AdminHandler struct {
	svc services.AdminService
}

func NewAdminHandler(svc services.AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) Overview(c *gin.Context) {
	out, err := h.svc.Overview(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
