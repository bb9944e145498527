package socket

import (
	"context"
	"net/http"
	"time"

	"fitrank/backend/internal/apperr"
	"fitrank/backend/internal/auth"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/presence"
	"fitrank/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// EventUnseenEvents carries the events a client missed, sent once on connect.
const EventUnseenEvents = "unseen-events"

const requestTimeout = 15 * time.Second

// Options tune each connection.
type Options struct {
	AckTimeout  time.Duration
	SendBuffer  int
	RateLimit   float64
	RateBurst   int
	ReplayLimit int
}

// Handler upgrades authenticated requests and serves the connection.
type Handler struct {
	secret  string
	hub     *hub.Hub
	friends *friends.Service
	outbox  *outbox.Outbox
	mirror  presence.Mirror
	opts    Options
	log     logrus.FieldLogger
	routes  map[string]route
}

func NewHandler(secret string, h *hub.Hub, fs *friends.Service, ob *outbox.Outbox, mirror presence.Mirror, opts Options, log logrus.FieldLogger) *Handler {
	if mirror == nil {
		mirror = presence.Nop{}
	}
	handler := &Handler{
		secret:  secret,
		hub:     h,
		friends: fs,
		outbox:  ob,
		mirror:  mirror,
		opts:    opts,
		log:     log.WithField("component", "socket"),
	}
	handler.routes = handler.buildRoutes()
	return handler
}

// ackPayload is what a client answers the unseen-events push with.
type ackPayload struct {
	SeenUpTo uint `json:"seenUpTo"`
}

// Serve godoc
// @Summary      Open the realtime connection
// @Description  Upgrades to a websocket. The token may be passed as ?token= or an Authorization bearer header.
// @Tags         realtime
// @Param        token  query  string  false  "JWT"
// @Success      101
// @Failure      401  {object}  apperr.Result
// @Router       /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	userID, err := jwt.ParseToken(h.secret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Fail(apperr.BadData("invalid or expired token")))
		return
	}

	conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(apperr.Websocket("upgrade failed", err)).Warn("websocket upgrade failed")
		return
	}

	client := newClient(conn, userID, h.opts, h.log)
	go client.writePump()
	h.serve(c.Request.Context(), client)
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	userID := client.UserID()
	log := client.log

	bucket, first, err := h.hub.Attach(ctx, userID, client)
	if err != nil {
		log.WithError(err).Error("attach failed")
		client.close()
		return
	}
	if first {
		if err := h.mirror.SetOnline(ctx, userID, bucket.Status()); err != nil {
			log.WithError(err).Warn("presence mirror failed")
		}
		h.hub.BroadcastStatus(bucket, bucket.Status().Visible())
	}
	log.WithField("first", first).Info("client connected")

	go h.replay(ctx, client)

	client.readPump(func(f Frame) { h.dispatch(ctx, client, bucket, f) })

	if h.hub.Detach(userID, client) {
		if err := h.mirror.SetOffline(context.Background(), userID); err != nil {
			log.WithError(err).Warn("presence mirror failed")
		}
		h.hub.BroadcastStatus(bucket, hub.StatusOffline)
	}
	log.Info("client disconnected")
}

// replay pushes the events missed while offline and advances the watermark to
// whatever the client confirms.
func (h *Handler) replay(ctx context.Context, client *Client) {
	userID := client.UserID()
	events, err := h.outbox.FetchUnseen(ctx, userID, h.opts.ReplayLimit)
	if err != nil {
		client.log.WithError(err).Error("load unseen events failed")
		return
	}
	if len(events) == 0 {
		return
	}

	raw, err := client.AwaitAck(ctx, hub.Message{Event: EventUnseenEvents, Data: events}, h.opts.AckTimeout)
	if err != nil {
		client.log.WithError(err).Debug("unseen events not acknowledged")
		return
	}
	var ack ackPayload
	if err := codec.Unmarshal(raw, &ack); err != nil || ack.SeenUpTo == 0 {
		return
	}
	if _, err := h.outbox.MarkEventsSeen(ctx, userID, ack.SeenUpTo); err != nil {
		client.log.WithError(err).Error("mark events seen failed")
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, bucket *hub.Bucket, f Frame) {
	if !client.limiter.Allow() {
		client.reply(f.AckID, apperr.Fail(apperr.BadData("rate limit exceeded")))
		return
	}
	r, ok := h.routes[f.Event]
	if !ok {
		client.reply(f.AckID, apperr.Fail(apperr.BadData("unknown event "+f.Event)))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	code, data, err := r(ctx, &session{userID: client.UserID(), bucket: bucket}, f.Data)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			client.log.WithError(err).WithField("event", f.Event).Error("request failed")
		}
		client.reply(f.AckID, apperr.Fail(err))
		return
	}
	client.reply(f.AckID, apperr.OK(code, data))
}
