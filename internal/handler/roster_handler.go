package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	"github.com/invigilo/exam-duty-api/internal/service"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
	"github.com/invigilo/exam-duty-api/pkg/response"
)

// RosterHandler wires roster management to HTTP routes.
type RosterHandler struct {
	roster         *service.RosterService
	maxUploadBytes int64
}

// NewRosterHandler constructs a RosterHandler.
func NewRosterHandler(roster *service.RosterService, maxUploadBytes int64) *RosterHandler {
	return &RosterHandler{roster: roster, maxUploadBytes: maxUploadBytes}
}

// List godoc
// @Summary List teachers
// @Tags Roster
// @Produce json
// @Param search query string false "Search by name/email"
// @Param grade query string false "Filter by grade"
// @Param participates query bool false "Filter by surveillance participation"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *RosterHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Grade:     strings.TrimSpace(c.Query("grade")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if participates := c.Query("participates"); participates != "" {
		switch strings.ToLower(participates) {
		case "true":
			val := true
			filter.Participates = &val
		case "false":
			val := false
			filter.Participates = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	teachers, pagination, err := h.roster.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, &pagination)
}

// Get godoc
// @Summary Get teacher detail with availability
// @Tags Roster
// @Produce json
// @Param id path int true "Teacher code"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *RosterHandler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher id must be an integer"))
		return
	}
	teacher, err := h.roster.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Create godoc
// @Summary Create teacher
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body dto.TeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Router /teachers [post]
func (h *RosterHandler) Create(c *gin.Context) {
	var req dto.TeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}
	teacher, err := h.roster.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// Update godoc
// @Summary Update teacher
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path int true "Teacher code"
// @Param payload body dto.TeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [put]
func (h *RosterHandler) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher id must be an integer"))
		return
	}
	var req dto.TeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}
	teacher, err := h.roster.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Delete godoc
// @Summary Delete teacher
// @Tags Roster
// @Param id path int true "Teacher code"
// @Success 204
// @Router /teachers/{id} [delete]
func (h *RosterHandler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher id must be an integer"))
		return
	}
	if err := h.roster.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Grades godoc
// @Summary List distinct roster grades
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/grades [get]
func (h *RosterHandler) Grades(c *gin.Context) {
	grades, err := h.roster.ListGrades(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// SetAvailability godoc
// @Summary Replace a teacher's declared unavailability
// @Tags Roster
// @Accept json
// @Param id path int true "Teacher code"
// @Param payload body dto.AvailabilityRequest true "Availability payload"
// @Success 204
// @Router /teachers/{id}/availability [put]
func (h *RosterHandler) SetAvailability(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher id must be an integer"))
		return
	}
	var req dto.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	if err := h.roster.SetAvailability(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ImportRoster godoc
// @Summary Import teachers from a CSV/XLSX upload
// @Tags Roster
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Roster file"
// @Success 200 {object} response.Envelope
// @Router /teachers/import [post]
func (h *RosterHandler) ImportRoster(c *gin.Context) {
	file, header, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close() //nolint:errcheck

	report, err := h.roster.ImportRoster(c.Request.Context(), header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ImportWishes godoc
// @Summary Import declared unavailability from a CSV/XLSX upload
// @Tags Roster
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Availability file"
// @Success 200 {object} response.Envelope
// @Router /teachers/availability/import [post]
func (h *RosterHandler) ImportWishes(c *gin.Context) {
	file, header, ok := h.openUpload(c)
	if !ok {
		return
	}
	defer file.Close() //nolint:errcheck

	report, err := h.roster.ImportWishes(c.Request.Context(), header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

func (h *RosterHandler) openUpload(c *gin.Context) (multipart.File, *multipart.FileHeader, bool) {
	return openUpload(c, h.maxUploadBytes)
}

func openUpload(c *gin.Context, maxBytes int64) (multipart.File, *multipart.FileHeader, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file upload is required"))
		return nil, nil, false
	}
	if maxBytes > 0 && header.Size > maxBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file too large"))
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return nil, nil, false
	}
	return file, header, true
}
