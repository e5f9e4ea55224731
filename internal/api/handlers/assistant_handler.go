package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/services"
	"github.com/yoockh/vaihub/internal/utils"
)

const maxVoiceBytes = 10 << 20

type AssistantHandler struct {
	svc services.AssistantService
	log *logrus.Logger
}

func NewAssistantHandler(svc services.AssistantService, log *logrus.Logger) *AssistantHandler {
	return &AssistantHandler{svc: svc, log: log}
}

type transcriptRequest struct {
	Messages []models.ChatTurn `json:"messages"`
}

type sendAssistantRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// Complete is the edge-function compatible endpoint: the client sends the
// whole transcript and gets one assistant turn back. Every failure is a 400
// with {"error": "..."}.
func (h *AssistantHandler) Complete(c *gin.Context) {
	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	turn, err := h.svc.Reply(c.Request.Context(), req.Messages)
	if err != nil {
		h.log.WithError(err).Warn("ai-assistant failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SafeMessage(err)})
		return
	}
	c.JSON(http.StatusOK, turn)
}

// Stream answers a transcript as server-sent "chunk" events, then "done" or
// "error".
func (h *AssistantHandler) Stream(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AssistantHandler.Stream", "invalid request body", err))
		return
	}

	chunks, errs, err := h.svc.Stream(c.Request.Context(), req.Messages)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-errs; err != nil {
					h.log.WithError(err).Warn("assistant stream failed")
					c.SSEvent("error", gin.H{"error": "assistant is unavailable"})
					return false
				}
				c.SSEvent("done", gin.H{})
				return false
			}
			c.SSEvent("chunk", gin.H{"content": chunk})
			return true
		}
	})
}

func (h *AssistantHandler) Send(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req sendAssistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AssistantHandler.Send", "invalid request body", err))
		return
	}

	res, err := h.svc.Send(c.Request.Context(), userID, req.ConversationID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AssistantHandler) Conversations(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	out, err := h.svc.Conversations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *AssistantHandler) Messages(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	out, err := h.svc.Messages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Transcribe turns a recorded voice prompt (multipart field "audio") into text.
func (h *AssistantHandler) Transcribe(c *gin.Context) {
	const op = "AssistantHandler.Transcribe"
	if _, ok := requireUserID(c); !ok {
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'audio'", err))
		return
	}
	if fh.Size > maxVoiceBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio must be 10MB or smaller", nil))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(io.LimitReader(f, maxVoiceBytes+1))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read audio", err))
		return
	}

	text, err := h.svc.Transcribe(c.Request.Context(), audio, c.PostForm("language"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}
