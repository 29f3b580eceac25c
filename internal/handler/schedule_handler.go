package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/service"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/response"
)

// ScheduleHandler exposes conflict-probe and calendar endpoints.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs a schedule handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Check godoc
// @Summary Dry-run conflict check for a prospective slot
// @Description Returns the first committed slot colliding with the proposal, or no data when the slot is free. Nothing is persisted.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body service.CheckConflictRequest true "Proposed slot"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedule/check [post]
func (h *ScheduleHandler) Check(c *gin.Context) {
	var req service.CheckConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflict, err := h.service.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"conflict": conflict, "free": conflict == nil}, nil)
}

// SectionSlots godoc
// @Summary List a section's weekly slots
// @Tags Schedule
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/slots [get]
func (h *ScheduleHandler) SectionSlots(c *gin.Context) {
	slots, err := h.service.ListSectionSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// TeachingDates godoc
// @Summary List the calendar meeting dates of a slot
// @Tags Schedule
// @Produce json
// @Param slotId path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /slots/{slotId}/dates [get]
func (h *ScheduleHandler) TeachingDates(c *gin.Context) {
	dates, err := h.service.TeachingDates(c.Request.Context(), c.Param("slotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dates, nil)
}
