package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/models"
	"github.com/campus-dev/sis-api/internal/service"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/response"
)

// RegistrationHandler exposes student registration endpoints.
type RegistrationHandler struct {
	service *service.RegistrationService
	users   *service.UserService
	metrics *service.MetricsService
}

// NewRegistrationHandler constructs a registration handler.
func NewRegistrationHandler(svc *service.RegistrationService, users *service.UserService, metrics *service.MetricsService) *RegistrationHandler {
	return &RegistrationHandler{service: svc, users: users, metrics: metrics}
}

// Register godoc
// @Summary Register for a section
// @Description Enrolls the authenticated student. Fails when registration is closed, the student is already enrolled, the section is full, or the timetable overlaps another enrollment.
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Target section"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	studentID, ok := h.studentID(c)
	if !ok {
		return
	}

	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.service.Register(c.Request.Context(), studentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordRegistration()
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop an enrollment
// @Tags Registration
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204
// @Security BearerAuth
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	studentID, ok := h.studentID(c)
	if !ok {
		return
	}
	if err := h.service.Drop(c.Request.Context(), studentID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyEnrollments godoc
// @Summary List own enrollments
// @Tags Registration
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [get]
func (h *RegistrationHandler) MyEnrollments(c *gin.Context) {
	studentID, ok := h.studentID(c)
	if !ok {
		return
	}
	enrollments, err := h.service.ListStudentEnrollments(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// ListEnrollments godoc
// @Summary List enrollments across students
// @Description Administrative listing with optional student, section and term filters.
// @Tags Registration
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param sectionId query string false "Filter by section"
// @Param termId query string false "Filter by term"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *RegistrationHandler) ListEnrollments(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.SectionID = c.Query("sectionId")
	filter.TermID = c.Query("termId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.service.ListEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// SectionRoster godoc
// @Summary List the roster of a section
// @Tags Registration
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/roster [get]
func (h *RegistrationHandler) SectionRoster(c *gin.Context) {
	roster, err := h.service.ListSectionRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// studentID resolves the acting student's profile id from the JWT claims.
func (h *RegistrationHandler) studentID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	if claims.Role != models.RoleStudent {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students can manage registrations"))
		return "", false
	}
	profile, err := h.users.StudentProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	return profile.ID, true
}
