package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/repos"
)

type ProfileHandler struct {
	profiles repos.ProfileRepo
}

func NewProfileHandler(profiles repos.ProfileRepo) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type profileBody struct {
	Goals                  []string `json:"goals"`
	RegisterPreferences    string   `json:"register_preferences"`
	CulturalInterests      []string `json:"cultural_interests"`
	PreferredExerciseTypes []string `json:"preferred_exercise_types"`
	ScenarioDetails        string   `json:"scenario_details"`
	GrammarFocusAreas      []string `json:"grammar_focus_areas"`
}

// PUT /api/users/:id/profile
func (h *ProfileHandler) Upsert(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	var body profileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	profile, err := h.profiles.Upsert(c.Request.Context(), nil, &domain.LearnerProfile{
		UserID:                 userID,
		Goals:                  domain.EncodeStrings(body.Goals),
		RegisterPreferences:    body.RegisterPreferences,
		CulturalInterests:      domain.EncodeStrings(body.CulturalInterests),
		PreferredExerciseTypes: domain.EncodeStrings(body.PreferredExerciseTypes),
		ScenarioDetails:        body.ScenarioDetails,
		GrammarFocusAreas:      domain.EncodeStrings(body.GrammarFocusAreas),
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "profile_upsert_failed", err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}

// GET /api/users/:id/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
		return
	}
	profile, err := h.profiles.GetByUserID(c.Request.Context(), nil, userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "profile_lookup_failed", err)
		return
	}
	if profile == nil {
		RespondError(c, http.StatusNotFound, "profile_not_found", errors.New("profile not found"))
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}
