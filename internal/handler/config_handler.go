package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/service"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
	"github.com/invigilo/exam-duty-api/pkg/response"
)

// ConfigHandler exposes duty configuration over HTTP.
type ConfigHandler struct {
	config *service.ConfigService
}

// NewConfigHandler constructs a ConfigHandler.
func NewConfigHandler(config *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// Current godoc
// @Summary Get the active duty configuration
// @Tags Config
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /config [get]
func (h *ConfigHandler) Current(c *gin.Context) {
	cfg, err := h.config.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// UpdateRatios godoc
// @Summary Update room staffing ratios
// @Tags Config
// @Accept json
// @Produce json
// @Param payload body dto.RatiosRequest true "Ratios payload"
// @Success 200 {object} response.Envelope
// @Router /config/ratios [put]
func (h *ConfigHandler) UpdateRatios(c *gin.Context) {
	var req dto.RatiosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ratios payload"))
		return
	}
	cfg, err := h.config.UpdateRatios(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// SetQuota godoc
// @Summary Set the per-grade duty quota
// @Tags Config
// @Accept json
// @Param payload body dto.QuotaRequest true "Quota payload"
// @Success 204
// @Router /config/quotas [put]
func (h *ConfigHandler) SetQuota(c *gin.Context) {
	var req dto.QuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quota payload"))
		return
	}
	if err := h.config.SetQuota(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveQuota godoc
// @Summary Remove the duty quota for a grade
// @Tags Config
// @Param grade path string true "Grade code"
// @Success 204
// @Router /config/quotas/{grade} [delete]
func (h *ConfigHandler) RemoveQuota(c *gin.Context) {
	if err := h.config.RemoveQuota(c.Request.Context(), c.Param("grade")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Diagnostics godoc
// @Summary Compare quota grades against roster grades
// @Tags Config
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /config/diagnostics [get]
func (h *ConfigHandler) Diagnostics(c *gin.Context) {
	diag, err := h.config.Diagnostics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, diag, nil)
}
