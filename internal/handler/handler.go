package handler

import (
	"net/http"
	"strconv"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/auth"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/progress"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse documents the failure shape of apperr.Result.
type ErrorResponse struct {
	OK    bool               `json:"ok" example:"false"`
	Error apperr.ResultError `json:"error"`
}

// Handler serves the REST surface over the friend, outbox and progress services.
type Handler struct {
	friends  *friends.Service
	outbox   *outbox.Outbox
	progress *progress.Service
	log      logrus.FieldLogger
}

func New(fs *friends.Service, ob *outbox.Outbox, ps *progress.Service, log logrus.FieldLogger) *Handler {
	return &Handler{
		friends:  fs,
		outbox:   ob,
		progress: ps,
		log:      log.WithField("component", "http"),
	}
}

// Register mounts every route on rg. rg must already be behind auth.AuthMiddleware.
func (h *Handler) Register(rg *gin.RouterGroup) {
	friendRoutes := rg.Group("/friends")
	{
		friendRoutes.POST("/requests", h.SendRequest)
		friendRoutes.POST("/:id/accept", h.AcceptRequest)
		friendRoutes.POST("/:id/decline", h.DeclineRequest)
		friendRoutes.POST("/:id/cancel", h.CancelRequest)
		friendRoutes.DELETE("/:id", h.RemoveFriend)
		friendRoutes.GET("/:id/status", h.GetFriendStatus)
	}

	blockRoutes := rg.Group("/blocks")
	{
		blockRoutes.POST("/:id", h.BlockUser)
		blockRoutes.DELETE("/:id", h.UnblockUser)
	}

	profileRoutes := rg.Group("/profiles")
	{
		profileRoutes.GET("", h.GetAllKnownProfiles)
		profileRoutes.GET("/:id", h.GetKnownProfile)
	}

	eventRoutes := rg.Group("/events")
	{
		eventRoutes.GET("", h.GetEventsAfter)
		eventRoutes.GET("/unseen", h.GetUnseenEvents)
		eventRoutes.POST("/seen", h.MarkEventsSeen)
	}

	rg.POST("/workouts", h.RecordWorkout)
	rg.GET("/progress/categories", h.GetCategoryProgress)
}

func (h *Handler) ok(c *gin.Context, status int, code string, data any) {
	c.JSON(status, apperr.OK(code, data))
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(apperr.HTTPStatus(code), apperr.Fail(err))
}

// viewer returns the authenticated user, answering 401 when the middleware did not run.
func (h *Handler) viewer(c *gin.Context) (uint, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Fail(apperr.BadData("not authenticated")))
	}
	return id, ok
}

// pathTarget parses the :id path parameter into a friends.Target.
func pathTarget(c *gin.Context) (friends.Target, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return friends.Target{}, apperr.BadData("invalid user id")
	}
	return friends.ByID(uint(id)), nil
}
