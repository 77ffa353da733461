package handlers

import (
	"context"
	"net/http"
	"time"

	"meal-order-api/live"
	"meal-order-api/middleware"
	"meal-order-api/models"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens, not cookies, authenticate the socket
	},
}

// liveMessage is one frame sent to the client. Error replaces Data when
// the state could not be loaded.
type liveMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Live streams the caller's orders and notifications, the menu and, for
// admins, every order. Each topic is sent once on connect and again
// whenever it changes.
func (h *Handler) Live(c *gin.Context) {
	user := middleware.GetUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warnw("failed to upgrade live connection", "user_id", user.ID, "error", err)
		return
	}
	defer conn.Close()

	ordersTopic := live.UserOrdersTopic(user.ID)
	notesTopic := live.UserNotificationsTopic(user.ID)

	orders := h.Hub.Subscribe(ordersTopic)
	defer orders.Cancel()
	notes := h.Hub.Subscribe(notesTopic)
	defer notes.Cancel()
	menu := h.Hub.Subscribe(live.MenuTopic)
	defer menu.Cancel()

	var adminOrders <-chan live.Snapshot
	if user.IsAdmin {
		sub := h.Hub.Subscribe(live.AdminOrdersTopic)
		defer sub.Cancel()
		adminOrders = sub.C()
	}

	h.Metrics.LiveSubscriptions.Inc()
	defer h.Metrics.LiveSubscriptions.Dec()
	h.Logger.Infow("live connection opened", "user_id", user.ID)

	ctx := c.Request.Context()
	for _, msg := range h.initialSnapshots(ctx, user) {
		if err := writeFrame(conn, msg); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var (
			snap live.Snapshot
			ok   bool
		)
		select {
		case snap, ok = <-orders.C():
		case snap, ok = <-notes.C():
		case snap, ok = <-menu.C():
		case snap, ok = <-adminOrders:
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-done:
			h.Logger.Infow("live connection closed", "user_id", user.ID)
			return
		}

		if !ok {
			// hub shut down
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
		if err := writeFrame(conn, liveMessage{Topic: snap.Topic, Data: snap.Data}); err != nil {
			return
		}
	}
}

func (h *Handler) initialSnapshots(ctx context.Context, user *models.User) []liveMessage {
	load := func(topic string, fn func() (any, error)) liveMessage {
		data, err := fn()
		if err != nil {
			h.Logger.Errorw("failed to load live snapshot", "topic", topic, "error", err)
			return liveMessage{Topic: topic, Error: "could not load " + topic}
		}
		return liveMessage{Topic: topic, Data: data}
	}

	msgs := []liveMessage{
		load(live.UserOrdersTopic(user.ID), func() (any, error) {
			return h.Orders.ListForUser(ctx, user.ID)
		}),
		load(live.UserNotificationsTopic(user.ID), func() (any, error) {
			return h.Notifications.List(ctx, user.ID)
		}),
		load(live.MenuTopic, func() (any, error) {
			return h.Catalog.ResolvedMenu(ctx)
		}),
	}
	if user.IsAdmin {
		msgs = append(msgs, load(live.AdminOrdersTopic, func() (any, error) {
			return h.Orders.ListAll(ctx, "")
		}))
	}
	return msgs
}

func writeFrame(conn *websocket.Conn, msg liveMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, body)
}

// readPump keeps the read side alive so pongs and close frames are
// processed. Clients have nothing to send; done is closed when the
// connection goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
