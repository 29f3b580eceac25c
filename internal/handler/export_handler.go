package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/service"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/response"
)

// ExportHandler streams rendered transcripts and grade sheets.
type ExportHandler struct {
	service *service.ExportService
	users   *service.UserService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService, users *service.UserService) *ExportHandler {
	return &ExportHandler{service: svc, users: users}
}

// MyTranscript godoc
// @Summary Download own transcript
// @Tags Exports
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(pdf)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /exports/transcript [get]
func (h *ExportHandler) MyTranscript(c *gin.Context) {
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
	h.streamTranscript(c, profile.ID)
}

// StudentTranscript godoc
// @Summary Download the transcript of a student
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Student profile ID"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /exports/students/{id}/transcript [get]
func (h *ExportHandler) StudentTranscript(c *gin.Context) {
	h.streamTranscript(c, c.Param("id"))
}

// SectionGradeSheet godoc
// @Summary Download the grade sheet of a section
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Section ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /exports/sections/{id}/grades [get]
func (h *ExportHandler) SectionGradeSheet(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	file, err := h.service.SectionGradeSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, file)
}

func (h *ExportHandler) streamTranscript(c *gin.Context, studentID string) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatPDF)))
	file, err := h.service.StudentTranscript(c.Request.Context(), studentID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, file)
}

func (h *ExportHandler) stream(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}
