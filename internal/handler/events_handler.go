package handler

import (
	"net/http"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/outbox"

	"github.com/gin-gonic/gin"
)

// MarkSeenInput is the watermark a client has caught up to.
type MarkSeenInput struct {
	UptoID uint `json:"uptoId" binding:"required" example:"42"`
}

// GetUnseenEvents godoc
// @Summary      List unseen events
// @Description  Returns the caller's unseen events in delivery order.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Max events" default(200)
// @Success      200    {object}  CursorPage
// @Failure      401    {object}  ErrorResponse
// @Router       /events/unseen [get]
func (h *Handler) GetUnseenEvents(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	limit := queryLimit(c, outbox.DefaultLimit, outbox.DefaultLimit*5)
	events, err := h.outbox.GetAllUnseenEvents(c.Request.Context(), viewerID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "events", NewCursorPage(events, 0, limit))
}

// GetEventsAfter godoc
// @Summary      List events after a cursor
// @Description  Returns the caller's events, seen or not, with id greater than ?after.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        after  query     int  false  "Exclusive event id cursor" default(0)
// @Param        limit  query     int  false  "Max events" default(200)
// @Success      200    {object}  CursorPage
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /events [get]
func (h *Handler) GetEventsAfter(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	after, ok := queryUint(c, "after", 0)
	if !ok {
		h.fail(c, apperr.BadData("invalid after cursor"))
		return
	}
	limit := queryLimit(c, outbox.DefaultLimit, outbox.DefaultLimit*5)
	events, err := h.outbox.GetEventsAfterRef(c.Request.Context(), viewerID, uint(after), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "events", NewCursorPage(events, uint(after), limit))
}

// MarkEventsSeen godoc
// @Summary      Mark events seen
// @Description  Stamps every unseen event up to uptoId. Repeating the call is harmless.
// @Tags         events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input  body      MarkSeenInput  true  "Watermark"
// @Success      200    {object}  map[string]int "{"marked": 3}"
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /events/seen [post]
func (h *Handler) MarkEventsSeen(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	var input MarkSeenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, apperr.BadData(err.Error()))
		return
	}
	n, err := h.outbox.MarkEventsSeen(c.Request.Context(), viewerID, input.UptoID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "events-seen", gin.H{"marked": n})
}
