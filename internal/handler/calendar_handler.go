package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/exam-duty-api/internal/service"
	"github.com/invigilo/exam-duty-api/pkg/response"
)

// CalendarHandler exposes the exam calendar over HTTP.
type CalendarHandler struct {
	calendar       *service.CalendarService
	maxUploadBytes int64
}

// NewCalendarHandler constructs a CalendarHandler.
func NewCalendarHandler(calendar *service.CalendarService, maxUploadBytes int64) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, maxUploadBytes: maxUploadBytes}
}

// Current godoc
// @Summary Get the loaded exam calendar
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar [get]
func (h *CalendarHandler) Current(c *gin.Context) {
	calendar, err := h.calendar.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil)
}

// Import godoc
// @Summary Import the session catalog from a CSV/XLSX upload
// @Tags Calendar
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} response.Envelope
// @Param file formData file true "Session catalog file"
// @Router /calendar/import [post]
func (h *CalendarHandler) Import(c *gin.Context) {
	file, header, ok := openUpload(c, h.maxUploadBytes)
	if !ok {
		return
	}
	defer file.Close() //nolint:errcheck

	calendar, err := h.calendar.ImportSessions(c.Request.Context(), header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil)
}
