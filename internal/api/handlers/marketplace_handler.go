package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/utils"
)

type MarketplaceHandler struct {
	svc services.MarketplaceService
}

func NewMarketplaceHandler(svc services.MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{svc: svc}
}

func (h *MarketplaceHandler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *MarketplaceHandler) Get(c *gin.Context) {
	row, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

// Create takes multipart form fields title, description, price, tags and image.
func (h *MarketplaceHandler) Create(c *gin.Context) {
	const op = "MarketplaceHandler.Create"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var in services.ServiceInput
	if err := c.ShouldBind(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid form", err))
		return
	}
	up, done, err := imageUpload(c, op, "image")
	if err != nil {
		writeError(c, err)
		return
	}
	defer done()

	row, err := h.svc.Create(c.Request.Context(), userID, in, up)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

// Update replaces the listing fields; the image is replaced only when sent.
func (h *MarketplaceHandler) Update(c *gin.Context) {
	const op = "MarketplaceHandler.Update"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var in services.ServiceInput
	if err := c.ShouldBind(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid form", err))
		return
	}
	var up *services.Upload
	if c.ContentType() == "multipart/form-data" {
		var done func()
		var err error
		if up, done, err = imageUpload(c, op, "image"); err != nil {
			writeError(c, err)
			return
		}
		defer done()
	}

	row, err := h.svc.Update(c.Request.Context(), userID, c.Param("id"), in, up)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *MarketplaceHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
