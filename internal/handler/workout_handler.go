package handler

import (
	"net/http"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/progress"

	"github.com/gin-gonic/gin"
)

// RecordWorkout godoc
// @Summary      Record a workout
// @Description  Awards XP for a workout to the user and its muscle category, emitting level-up events.
// @Tags         progress
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input  body      progress.WorkoutInput  true  "Workout"
// @Success      201    {object}  progress.WorkoutResult
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /workouts [post]
func (h *Handler) RecordWorkout(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	var input progress.WorkoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, apperr.BadData(err.Error()))
		return
	}
	res, err := h.progress.RecordWorkout(c.Request.Context(), viewerID, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, "workout-recorded", res)
}

// GetCategoryProgress godoc
// @Summary      List category progress
// @Description  Returns the caller's XP and level per muscle category.
// @Tags         progress
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.CategoryProgress
// @Failure      401  {object}  ErrorResponse
// @Router       /progress/categories [get]
func (h *Handler) GetCategoryProgress(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	rows, err := h.progress.CategoryProgress(c.Request.Context(), viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "category-progress", rows)
}
