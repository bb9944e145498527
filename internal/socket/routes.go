package socket

import (
	"context"
	"encoding/json"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/hub"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type session struct {
	userID uint
	bucket *hub.Bucket
}

// route handles one client event and returns the outcome code and payload.
type route func(ctx context.Context, s *session, data json.RawMessage) (string, any, error)

type targetRequest struct {
	UserID   uint   `json:"userId" validate:"required_without=Username"`
	Username string `json:"username" validate:"omitempty,max=255"`
}

func (r targetRequest) target() friends.Target {
	return friends.Target{ID: r.UserID, Username: r.Username}
}

type markSeenRequest struct {
	UptoID uint `json:"uptoId" validate:"required"`
}

type eventsAfterRequest struct {
	After uint `json:"after"`
	Limit int  `json:"limit" validate:"gte=0,lte=1000"`
}

type unseenRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

type statusRequest struct {
	Status hub.Status `json:"status" validate:"required,oneof=online away busy invisible"`
}

func decode(data json.RawMessage, dst any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := codec.Unmarshal(data, dst); err != nil {
			return apperr.BadData("malformed payload")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.BadData(err.Error())
	}
	return nil
}

type friendAction func(ctx context.Context, actor uint, target friends.Target, bucket *hub.Bucket) (*friends.Outcome, error)

func mutate(action friendAction) route {
	return func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
		var req targetRequest
		if err := decode(data, &req); err != nil {
			return "", nil, err
		}
		out, err := action(ctx, s.userID, req.target(), s.bucket)
		if err != nil {
			return "", nil, err
		}
		return string(out.Code), out, nil
	}
}

func (h *Handler) buildRoutes() map[string]route {
	return map[string]route{
		"add-friend":      mutate(h.friends.AddFriend),
		"accept-request":  mutate(h.friends.AcceptRequest),
		"decline-request": mutate(h.friends.DeclineRequest),
		"cancel-request":  mutate(h.friends.CancelRequest),
		"remove-friend":   mutate(h.friends.RemoveFriend),
		"block-user":      mutate(h.friends.BlockUser),
		"unblock-user":    mutate(h.friends.UnblockUser),

		"get-known-profile": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req targetRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			p, err := h.friends.GetKnownProfile(ctx, s.userID, req.target())
			return "known-profile", p, err
		},
		"get-friend-status": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req targetRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			st, err := h.friends.GetFriendStatus(ctx, s.userID, req.target())
			return "friend-status", st, err
		},
		"get-all-known-profiles": func(ctx context.Context, s *session, _ json.RawMessage) (string, any, error) {
			ps, err := h.friends.GetAllKnownProfiles(ctx, s.userID)
			return "known-profiles", ps, err
		},

		"mark-events-seen": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req markSeenRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			n, err := h.outbox.MarkEventsSeen(ctx, s.userID, req.UptoID)
			return "events-seen", map[string]int64{"marked": n}, err
		},
		"get-events-after": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req eventsAfterRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			evs, err := h.outbox.GetEventsAfterRef(ctx, s.userID, req.After, req.Limit)
			return "events", evs, err
		},
		"get-unseen-events": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req unseenRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			evs, err := h.outbox.GetAllUnseenEvents(ctx, s.userID, req.Limit)
			return "events", evs, err
		},

		"set-status": func(ctx context.Context, s *session, data json.RawMessage) (string, any, error) {
			var req statusRequest
			if err := decode(data, &req); err != nil {
				return "", nil, err
			}
			if err := h.hub.SetStatus(s.userID, req.Status); err != nil {
				return "", nil, err
			}
			if err := h.mirror.SetOnline(ctx, s.userID, req.Status); err != nil {
				h.log.WithError(err).WithField("user_id", s.userID).Warn("presence mirror failed")
			}
			return "status-changed", map[string]hub.Status{"status": req.Status}, nil
		},
	}
}
