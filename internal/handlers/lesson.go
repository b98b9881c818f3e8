package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tatamiapp/tatami-backend/internal/knowledge"
	"github.com/tatamiapp/tatami-backend/internal/services"
)

type LessonHandler struct {
	svc services.LessonCompileService
}

func NewLessonHandler(svc services.LessonCompileService) *LessonHandler {
	return &LessonHandler{svc: svc}
}

type compileRequestBody struct {
	DescriptorID string  `json:"descriptor_id" binding:"required"`
	UserID       *string `json:"user_id,omitempty"`
	MaxRepairs   *int    `json:"max_repairs,omitempty"`
}

// POST /api/lessons/compile
func (h *LessonHandler) Compile(c *gin.Context) {
	var body compileRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	req := services.CompileRequest{
		DescriptorID: strings.TrimSpace(body.DescriptorID),
		MaxRepairs:   body.MaxRepairs,
	}
	if body.UserID != nil {
		id, err := uuid.Parse(*body.UserID)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
			return
		}
		req.UserID = &id
	}

	run, err := h.svc.StartCompile(c.Request.Context(), req)
	if err != nil {
		var notFound *knowledge.ErrDescriptorNotFound
		if errors.As(err, &notFound) {
			RespondError(c, http.StatusNotFound, "descriptor_not_found", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "compile_start_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run":     run,
		"channel": "lesson:" + run.ID.String(),
	})
}

// GET /api/runs/:id
func (h *LessonHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.svc.GetRun(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", errors.New("run not found"))
		return
	}
	RespondOK(c, gin.H{"run": run})
}

// GET /api/lessons/:id
func (h *LessonHandler) GetLesson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return
	}
	lesson, err := h.svc.GetLesson(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lesson_lookup_failed", err)
		return
	}
	if lesson == nil {
		RespondError(c, http.StatusNotFound, "lesson_not_found", errors.New("lesson not found"))
		return
	}
	RespondOK(c, gin.H{"lesson": lesson})
}

// GET /api/lessons/latest?descriptor_id=...&user_id=...
func (h *LessonHandler) GetLatestLesson(c *gin.Context) {
	descriptorID := strings.TrimSpace(c.Query("descriptor_id"))
	if descriptorID == "" {
		RespondError(c, http.StatusBadRequest, "missing_descriptor_id", errors.New("descriptor_id required"))
		return
	}
	var userID *uuid.UUID
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
			return
		}
		userID = &id
	}

	lesson, err := h.svc.GetLatestLesson(c.Request.Context(), descriptorID, userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lesson_lookup_failed", err)
		return
	}
	if lesson == nil {
		RespondError(c, http.StatusNotFound, "lesson_not_found", errors.New("no lesson for descriptor"))
		return
	}
	RespondOK(c, gin.H{"lesson": lesson})
}

type regenerateRequestBody struct {
	Stage    string `json:"stage" binding:"required"`
	Artifact string `json:"artifact" binding:"required"`
}

// POST /api/lessons/:id/regenerate
func (h *LessonHandler) Regenerate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return
	}
	var body regenerateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	lesson, err := h.svc.RegenerateArtifact(c.Request.Context(), id, body.Stage, body.Artifact)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "regenerate_failed", err)
		return
	}
	RespondOK(c, gin.H{"lesson": lesson})
}
