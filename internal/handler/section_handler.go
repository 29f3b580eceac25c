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

// SectionHandler exposes class-section and timetable endpoints.
type SectionHandler struct {
	service *service.SectionService
	metrics *service.MetricsService
}

// NewSectionHandler constructs a section handler.
func NewSectionHandler(svc *service.SectionService, metrics *service.MetricsService) *SectionHandler {
	return &SectionHandler{service: svc, metrics: metrics}
}

// List godoc
// @Summary List class sections
// @Tags Sections
// @Produce json
// @Param termId query string false "Filter by term"
// @Param subjectId query string false "Filter by subject"
// @Param teacherId query string false "Filter by teacher"
// @Param locked query bool false "Filter by lock state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	var filter models.SectionFilter
	filter.TermID = c.Query("termId")
	filter.SubjectID = c.Query("subjectId")
	filter.TeacherID = c.Query("teacherId")
	if locked := c.Query("locked"); locked != "" {
		if val, err := strconv.ParseBool(locked); err == nil {
			filter.Locked = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sections, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Open a class section
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// Update godoc
// @Summary Update a section
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.UpdateSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id} [put]
func (h *SectionHandler) Update(c *gin.Context) {
	var req service.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Delete godoc
// @Summary Delete a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 204
// @Security BearerAuth
// @Router /sections/{id} [delete]
func (h *SectionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddSlot godoc
// @Summary Add a weekly slot to a section's timetable
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.AddSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Slot collides with a committed booking"
// @Security BearerAuth
// @Router /sections/{id}/slots [post]
func (h *SectionHandler) AddSlot(c *gin.Context) {
	var req service.AddSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SectionID = c.Param("id")

	slot, err := h.service.AddSlot(c.Request.Context(), req)
	if err != nil {
		h.countConflict(err)
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// RemoveSlot godoc
// @Summary Remove a slot from a section's timetable
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Param slotId path string true "Slot ID"
// @Success 204
// @Security BearerAuth
// @Router /sections/{id}/slots/{slotId} [delete]
func (h *SectionHandler) RemoveSlot(c *gin.Context) {
	if err := h.service.RemoveSlot(c.Request.Context(), c.Param("slotId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Lock godoc
// @Summary Lock a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 204
// @Security BearerAuth
// @Router /sections/{id}/lock [post]
func (h *SectionHandler) Lock(c *gin.Context) {
	if err := h.service.Lock(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unlock godoc
// @Summary Unlock a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 204
// @Security BearerAuth
// @Router /sections/{id}/unlock [post]
func (h *SectionHandler) Unlock(c *gin.Context) {
	if err := h.service.Unlock(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *SectionHandler) countConflict(err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil || appErr.Code != appErrors.ErrScheduleConflict.Code {
		return
	}
	if conflict, ok := appErr.Details.(models.ScheduleConflict); ok {
		h.metrics.RecordConflict(string(conflict.Dimension))
		return
	}
	h.metrics.RecordConflict("unknown")
}
