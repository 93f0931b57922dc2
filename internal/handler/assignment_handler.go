package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	"github.com/invigilo/exam-duty-api/internal/service"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
	"github.com/invigilo/exam-duty-api/pkg/response"
)

// AssignmentHandler wires the planner to HTTP routes.
type AssignmentHandler struct {
	planner  *service.PlannerService
	cache    *service.CacheService
	cacheTTL time.Duration
}

// NewAssignmentHandler constructs an AssignmentHandler.
func NewAssignmentHandler(planner *service.PlannerService, cache *service.CacheService, cacheTTL time.Duration) *AssignmentHandler {
	return &AssignmentHandler{planner: planner, cache: cache, cacheTTL: cacheTTL}
}

// Assign godoc
// @Summary Assign a teacher to a session
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.AssignRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Assign(c *gin.Context) {
	var req dto.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	if req.TeacherID < 1 || req.Day < 1 || req.Session < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher_id, day and session must be positive"))
		return
	}

	result, err := h.planner.Assign(c.Request.Context(), req.TeacherID, models.SlotRef{Day: req.Day, Session: req.Session}, req.Force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Remove godoc
// @Summary Remove a teacher from a session
// @Tags Assignments
// @Param teacherId path int true "Teacher ID"
// @Param day path int true "Day number (1-based)"
// @Param session path int true "Session number (1-based)"
// @Success 204
// @Router /assignments/{teacherId}/days/{day}/sessions/{session} [delete]
func (h *AssignmentHandler) Remove(c *gin.Context) {
	teacherID, err1 := strconv.Atoi(c.Param("teacherId"))
	day, err2 := strconv.Atoi(c.Param("day"))
	session, err3 := strconv.Atoi(c.Param("session"))
	if err1 != nil || err2 != nil || err3 != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacherId, day and session must be integers"))
		return
	}

	if err := h.planner.Remove(c.Request.Context(), teacherID, models.SlotRef{Day: day, Session: session}); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ReplaceSlot godoc
// @Summary Replace the full teacher list of a session
// @Tags Assignments
// @Accept json
// @Produce json
// @Param day path int true "Day number (1-based)"
// @Param session path int true "Session number (1-based)"
// @Param payload body dto.ReplaceSlotRequest true "Replacement payload"
// @Success 200 {object} response.Envelope
// @Router /slots/{day}/{session} [put]
func (h *AssignmentHandler) ReplaceSlot(c *gin.Context) {
	day, err1 := strconv.Atoi(c.Param("day"))
	session, err2 := strconv.Atoi(c.Param("session"))
	if err1 != nil || err2 != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "day and session must be integers"))
		return
	}

	var req dto.ReplaceSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid replacement payload"))
		return
	}

	results, err := h.planner.ReplaceSlot(c.Request.Context(), models.SlotRef{Day: day, Session: session}, req.TeacherIDs, req.Force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// AutoAssign godoc
// @Summary Run the automatic assignment engine
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/auto [post]
func (h *AssignmentHandler) AutoAssign(c *gin.Context) {
	report, err := h.planner.AutoAssign(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Summary godoc
// @Summary Aggregated board summary
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/summary [get]
func (h *AssignmentHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	var cached models.Summary
	if hit, _ := h.cache.Get(ctx, service.BoardSummaryKey, &cached); hit {
		response.JSON(c, http.StatusOK, cached, nil, map[string]interface{}{"cached": true})
		return
	}

	summary, err := h.planner.Summary(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.cache.Set(ctx, service.BoardSummaryKey, summary, h.cacheTTL)
	response.JSON(c, http.StatusOK, summary, nil)
}

// Conflicts godoc
// @Summary Active availability conflicts
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/conflicts [get]
func (h *AssignmentHandler) Conflicts(c *gin.Context) {
	ctx := c.Request.Context()

	var cached []models.Conflict
	if hit, _ := h.cache.Get(ctx, service.BoardConflictsKey, &cached); hit {
		response.JSON(c, http.StatusOK, cached, nil, map[string]interface{}{"cached": true})
		return
	}

	conflicts, err := h.planner.Conflicts(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.cache.Set(ctx, service.BoardConflictsKey, conflicts, h.cacheTTL)
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// Reload godoc
// @Summary Rebuild the board from persisted state
// @Tags Assignments
// @Success 204
// @Router /assignments/reload [post]
func (h *AssignmentHandler) Reload(c *gin.Context) {
	if err := h.planner.Reload(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
