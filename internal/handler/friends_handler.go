package handler

import (
	"context"
	"net/http"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/hub"

	"github.com/gin-gonic/gin"
)

// FriendRequestInput names the user to befriend, by id or username.
type FriendRequestInput struct {
	UserID   uint   `json:"userId" example:"2"`
	Username string `json:"username" binding:"max=255" example:"bob"`
}

type friendAction func(ctx context.Context, actor uint, target friends.Target, bucket *hub.Bucket) (*friends.Outcome, error)

// act runs a friend action against the :id path user.
func (h *Handler) act(c *gin.Context, action friendAction, status int) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	target, err := pathTarget(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	out, err := action(c.Request.Context(), viewerID, target, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, status, string(out.Code), out)
}

// SendRequest godoc
// @Summary      Send friend request
// @Description  Sends a friend request by user id or username. If the target already asked, the request is accepted instead.
// @Tags         friendship
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input  body      FriendRequestInput  true  "Target user"
// @Success      201    {object}  apperr.Result "code is friend-request-initiated or friend-request-accepted"
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Failure      403    {object}  ErrorResponse "Blocked"
// @Failure      404    {object}  ErrorResponse "Target user not found"
// @Failure      409    {object}  ErrorResponse "Already friends or already requested"
// @Router       /friends/requests [post]
func (h *Handler) SendRequest(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	var input FriendRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, apperr.BadData(err.Error()))
		return
	}
	if input.UserID == 0 && input.Username == "" {
		h.fail(c, apperr.BadData("userId or username is required"))
		return
	}

	target := friends.Target{ID: input.UserID, Username: input.Username}
	out, err := h.friends.AddFriend(c.Request.Context(), viewerID, target, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, string(out.Code), out)
}

// AcceptRequest godoc
// @Summary      Accept friend request
// @Description  Accepts a pending friend request from another user.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  apperr.Result
// @Failure      400  {object}  ErrorResponse "No request from this user"
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /friends/{id}/accept [post]
func (h *Handler) AcceptRequest(c *gin.Context) {
	h.act(c, h.friends.AcceptRequest, http.StatusOK)
}

// DeclineRequest godoc
// @Summary      Decline friend request
// @Description  Declines a pending friend request from another user.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Requesting User ID"
// @Success      200  {object}  apperr.Result
// @Failure      400  {object}  ErrorResponse "No request from this user"
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /friends/{id}/decline [post]
func (h *Handler) DeclineRequest(c *gin.Context) {
	h.act(c, h.friends.DeclineRequest, http.StatusOK)
}

// CancelRequest godoc
// @Summary      Cancel friend request
// @Description  Withdraws a friend request the caller sent.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Target User ID"
// @Success      200  {object}  apperr.Result
// @Failure      400  {object}  ErrorResponse "No request to this user"
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /friends/{id}/cancel [post]
func (h *Handler) CancelRequest(c *gin.Context) {
	h.act(c, h.friends.CancelRequest, http.StatusOK)
}

// RemoveFriend godoc
// @Summary      Remove friend
// @Description  Ends a friendship on both sides.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Friend User ID"
// @Success      200  {object}  apperr.Result
// @Failure      400  {object}  ErrorResponse "Not friends"
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /friends/{id} [delete]
func (h *Handler) RemoveFriend(c *gin.Context) {
	h.act(c, h.friends.RemoveFriend, http.StatusOK)
}

// BlockUser godoc
// @Summary      Block user
// @Description  Blocks a user. Existing friendships and requests are left in place.
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      201  {object}  apperr.Result
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Already blocked"
// @Router       /blocks/{id} [post]
func (h *Handler) BlockUser(c *gin.Context) {
	h.act(c, h.friends.BlockUser, http.StatusCreated)
}

// UnblockUser godoc
// @Summary      Unblock user
// @Tags         blocks
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  apperr.Result
// @Failure      400  {object}  ErrorResponse "Not blocked"
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /blocks/{id} [delete]
func (h *Handler) UnblockUser(c *gin.Context) {
	h.act(c, h.friends.UnblockUser, http.StatusOK)
}

// GetFriendStatus godoc
// @Summary      Get relation and presence of a user
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  friends.FriendStatus
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /friends/{id}/status [get]
func (h *Handler) GetFriendStatus(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	target, err := pathTarget(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	st, err := h.friends.GetFriendStatus(c.Request.Context(), viewerID, target)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "friend-status", st)
}

// GetKnownProfile godoc
// @Summary      Get a known profile
// @Description  Returns a user the caller has any relation with, or the caller themself.
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  friends.KnownProfile
// @Failure      400  {object}  ErrorResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Unknown to the caller"
// @Router       /profiles/{id} [get]
func (h *Handler) GetKnownProfile(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	target, err := pathTarget(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.friends.GetKnownProfile(c.Request.Context(), viewerID, target)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "known-profile", p)
}

// GetAllKnownProfiles godoc
// @Summary      List known profiles
// @Description  Lists every user in the caller's friend, request and block sets.
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   friends.KnownProfile
// @Failure      401  {object}  ErrorResponse
// @Router       /profiles [get]
func (h *Handler) GetAllKnownProfiles(c *gin.Context) {
	viewerID, ok := h.viewer(c)
	if !ok {
		return
	}
	ps, err := h.friends.GetAllKnownProfiles(c.Request.Context(), viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "known-profiles", ps)
}
