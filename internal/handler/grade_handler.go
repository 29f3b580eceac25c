package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/models"
	"github.com/campus-dev/sis-api/internal/service"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/response"
)

// GradeHandler exposes grade entry and reporting endpoints.
type GradeHandler struct {
	service *service.GradeService
	users   *service.UserService
}

// NewGradeHandler constructs a grade handler.
func NewGradeHandler(svc *service.GradeService, users *service.UserService) *GradeHandler {
	return &GradeHandler{service: svc, users: users}
}

// RecordScore godoc
// @Summary Record a component score
// @Description Teachers may only grade their own sections. The final grade refreshes once every weighted component is recorded.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.RecordScoreRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/scores [put]
func (h *GradeHandler) RecordScore(c *gin.Context) {
	teacherID, ok := h.actingTeacherID(c)
	if !ok {
		return
	}

	var req service.RecordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.service.RecordScore(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Scores godoc
// @Summary List the component scores of an enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/enrollments/{id}/scores [get]
func (h *GradeHandler) Scores(c *gin.Context) {
	scores, err := h.service.ListScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// FinalizeSection godoc
// @Summary Recompute the final grades of a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/sections/{id}/finalize [post]
func (h *GradeHandler) FinalizeSection(c *gin.Context) {
	teacherID, ok := h.actingTeacherID(c)
	if !ok {
		return
	}
	finalized, err := h.service.FinalizeSection(c.Request.Context(), teacherID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"finalized": finalized}, nil)
}

// SectionStats godoc
// @Summary Grade statistics of a section
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/sections/{id}/stats [get]
func (h *GradeHandler) SectionStats(c *gin.Context) {
	stats, err := h.service.SectionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// MyTranscript godoc
// @Summary Own transcript with cumulative GPA
// @Tags Grades
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/transcript [get]
func (h *GradeHandler) MyTranscript(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	profile, err := h.users.StudentProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	transcript, err := h.service.Transcript(c.Request.Context(), profile.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// StudentTranscript godoc
// @Summary Transcript of a student
// @Tags Grades
// @Produce json
// @Param id path string true "Student profile ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/students/{id}/transcript [get]
func (h *GradeHandler) StudentTranscript(c *gin.Context) {
	transcript, err := h.service.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// actingTeacherID resolves the acting teacher's profile id, or empty for
// administrative access.
func (h *GradeHandler) actingTeacherID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if claims.Role == models.RoleAdmin {
		return "", true
	}
	profile, err := h.users.TeacherProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	return profile.ID, true
}
