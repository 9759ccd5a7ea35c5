// Package stream pushes project and report change events to clients over
// Server-Sent Events and WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/ivvboard/internal/api/middleware"
	"github.com/good-yellow-bee/ivvboard/internal/api/respond"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
)

// Config controls connection lifetimes.
type Config struct {
	// Heartbeat is the keepalive interval.
	Heartbeat time.Duration
	// MaxDuration bounds how long a single connection may stay open.
	MaxDuration time.Duration
	// OriginPatterns lists hosts allowed to open cross-origin WebSockets.
	OriginPatterns []string
}

func (c *Config) setDefaults() {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Minute
	}
}

// Handler serves the event stream endpoints.
type Handler struct {
	subscriber watch.Subscriber
	projects   middleware.ProjectLookup
	cfg        Config
}

// NewHandler creates a stream handler.
func NewHandler(sub watch.Subscriber, projects middleware.ProjectLookup, cfg Config) *Handler {
	cfg.setDefaults()
	return &Handler{subscriber: sub, projects: projects, cfg: cfg}
}

// Events streams the changes of the gated project as SSE until the client
// disconnects or the maximum lifetime is reached.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	project := middleware.GetProject(r.Context())
	if project == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "streaming not supported")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.MaxDuration)
	defer cancel()

	events, err := h.subscriber.Subscribe(ctx, project.ID)
	if err != nil {
		zap.L().Error("subscribe", zap.String("project_id", project.ID), zap.Error(err))
		respond.Error(w, http.StatusServiceUnavailable, respond.CodeInternal, "event stream unavailable")
		return
	}

	metrics.SubscriptionsActive.WithLabelValues("sse").Inc()
	defer metrics.SubscriptionsActive.WithLabelValues("sse").Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := newSSEWriter(w, flusher)
	if err := sse.retry(5000); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
				_ = sse.event("close", `{"reason":"timeout"}`)
			}
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.json(string(ev.Type), ev); err != nil {
				return // client disconnected
			}

		case <-ticker.C:
			if err := sse.comment("heartbeat " + time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}

// subscribeMessage is sent by WebSocket clients. Directory subscribes to
// project-level changes of every project and is limited to ets staff.
type subscribeMessage struct {
	ProjectID string `json:"project_id"`
	Directory bool   `json:"directory,omitempty"`
}

// controlMessage acknowledges or rejects a subscription.
type controlMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"project_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebSocket accepts a connection on which the client subscribes to projects
// by sending {"project_id": "..."}. Each subscription is checked against the
// assignment gate and lasts until the connection closes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		respond.Error(w, http.StatusUnauthorized, respond.CodeUnauthorized, "authentication required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		zap.L().Warn("ws accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	metrics.SubscriptionsActive.WithLabelValues("ws").Inc()
	defer metrics.SubscriptionsActive.WithLabelValues("ws").Dec()

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.MaxDuration)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	out := make(chan any, 32)
	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- h.readSubscriptions(ctx, conn, &wg, out)
	}()

	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				conn.Close(websocket.StatusNormalClosure, "max duration reached")
			}
			return

		case err := <-readErr:
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				zap.L().Debug("ws read", zap.String("user_id", user.ID), zap.Error(err))
			}
			return

		case msg := <-out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// readSubscriptions reads subscribe messages until the connection fails.
// Every accepted subscription forwards its events to out.
func (h *Handler) readSubscriptions(ctx context.Context, conn *websocket.Conn, wg *sync.WaitGroup, out chan<- any) error {
	user := middleware.GetUser(ctx)
	subscribed := make(map[string]bool)

	send := func(msg any) {
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			send(controlMessage{Type: "error", Message: "invalid subscribe message"})
			continue
		}

		topic, errMsg := h.authorize(ctx, msg)
		if errMsg != "" {
			send(controlMessage{Type: "error", ProjectID: msg.ProjectID, Message: errMsg})
			continue
		}
		if subscribed[topic] {
			send(controlMessage{Type: "subscribed", ProjectID: msg.ProjectID})
			continue
		}

		events, err := h.subscriber.Subscribe(ctx, topic)
		if err != nil {
			zap.L().Error("subscribe", zap.String("topic", topic), zap.Error(err))
			send(controlMessage{Type: "error", ProjectID: msg.ProjectID, Message: "subscription unavailable"})
			continue
		}
		subscribed[topic] = true
		zap.L().Debug("ws subscribed", zap.String("user_id", user.ID), zap.String("topic", topic))
		send(controlMessage{Type: "subscribed", ProjectID: msg.ProjectID})

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					send(ev)
				}
			}
		}()
	}
}

// authorize resolves the topic of a subscribe message, or a rejection reason.
func (h *Handler) authorize(ctx context.Context, msg subscribeMessage) (string, string) {
	user := middleware.GetUser(ctx)
	if msg.Directory {
		if !user.IsETS() || !user.IsApproved() {
			return "", "access denied"
		}
		return watch.TopicProjects, ""
	}
	if msg.ProjectID == "" {
		return "", "project_id is required"
	}

	project, err := h.projects.GetByID(ctx, msg.ProjectID)
	if err != nil {
		zap.L().Error("ws load project", zap.String("project_id", msg.ProjectID), zap.Error(err))
		return "", "internal server error"
	}
	if project == nil {
		return "", "not found"
	}
	if !middleware.CanAccessProject(user, project) {
		return "", "access denied"
	}
	return project.ID, ""
}
