package handler

import (
	"strconv"

	"fitrank/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// CursorMeta describes where a keyset page ends.
type CursorMeta struct {
	After     uint `json:"after"`
	NextAfter uint `json:"nextAfter"`
	Limit     int  `json:"limit"`
	HasMore   bool `json:"hasMore"`
}

// CursorPage is a page of events keyed by id.
type CursorPage struct {
	Data []models.Event `json:"data"`
	Meta CursorMeta     `json:"meta"`
}

// NewCursorPage builds the page for events fetched with limit. A full page may
// have more behind it; NextAfter is the cursor for the following request.
func NewCursorPage(events []models.Event, after uint, limit int) CursorPage {
	if events == nil {
		events = []models.Event{}
	}
	next := after
	if n := len(events); n > 0 {
		next = events[n-1].ID
	}
	return CursorPage{
		Data: events,
		Meta: CursorMeta{
			After:     after,
			NextAfter: next,
			Limit:     limit,
			HasMore:   limit > 0 && len(events) == limit,
		},
	}
}

// queryUint reads an unsigned query parameter, falling back to def when absent.
func queryUint(c *gin.Context, name string, def uint64) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

// queryLimit reads ?limit=, defaulting to def and capping at maxLimit.
func queryLimit(c *gin.Context, def, maxLimit int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
