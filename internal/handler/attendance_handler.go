package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/models"
	"github.com/campus-dev/sis-api/internal/service"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
	users   *service.UserService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService, users *service.UserService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, users: users}
}

// Record godoc
// @Summary Record attendance for a section on one date
// @Description The date must be a calendar meeting date of the section's timetable.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.RecordAttendanceRequest true "Attendance payload"
// @Success 204
// @Security BearerAuth
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	teacherID := ""
	if claims.Role != models.RoleAdmin {
		profile, err := h.users.TeacherProfile(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		teacherID = profile.ID
	}

	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.Record(c.Request.Context(), teacherID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SectionOnDate godoc
// @Summary Attendance of a section on a date
// @Tags Attendance
// @Produce json
// @Param id path string true "Section ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/sections/{id} [get]
func (h *AttendanceHandler) SectionOnDate(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD"))
		return
	}
	logs, err := h.service.SectionOnDate(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// MyHistory godoc
// @Summary Own attendance history in a section
// @Tags Attendance
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/sections/{id}/me [get]
func (h *AttendanceHandler) MyHistory(c *gin.Context) {
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
	logs, err := h.service.StudentHistory(c.Request.Context(), profile.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
