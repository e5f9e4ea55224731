package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vaihub/internal/services"
)

type CourseHandler struct {
	svc services.CourseService
}

func NewCourseHandler(svc services.CourseService) *CourseHandler {
	return &CourseHandler{svc: svc}
}

func (h *CourseHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *CourseHandler) Lessons(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	detail, err := h.svc.Detail(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *CourseHandler) ToggleProgress(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	done, err := h.svc.ToggleProgress(c.Request.Context(), userID, c.Param("id"), c.Param("lesson_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lesson_id": c.Param("lesson_id"), "is_completed": done})
}
