package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/app"
	"quiz-analytics/internal/domain"
)

const writeWait = 10 * time.Second

type WSHandler struct {
	service  *app.AnalyticsService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AnalyticsService, logger logrus.FieldLogger) *WSHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type leaderboardRequest struct {
	Scope      string `json:"scope"`
	Department string `json:"department"`
	Section    string `json:"section"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pushes a "report" message on every
// recomputation. Clients may also ask for a scoped leaderboard.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	// the server's ReadTimeout deadline outlives the upgrade
	_ = conn.SetReadDeadline(time.Time{})

	updates, cancel, err := h.service.Subscribe(r.Context())
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[messagePayload]{Type: "error", Payload: messagePayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// gorilla connections allow one concurrent writer; everything goes through send.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case report, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "report", Payload: report}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "leaderboard":
			reply = h.leaderboard(r, inbound.Payload)
		case "ping":
			reply = outboundMessage[any]{Type: "pong", Payload: messagePayload{Message: "ok"}}
		default:
			reply = outboundMessage[any]{Type: "error", Payload: messagePayload{Message: "unsupported message type"}}
		}
		if !enqueue(send, writerDone, reply) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has exited.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) leaderboard(r *http.Request, raw json.RawMessage) outboundMessage[any] {
	var req leaderboardRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: "invalid leaderboard payload"}}
		}
	}
	if req.Scope == "" {
		req.Scope = string(domain.LevelInstitution)
	}
	level, err := analytics.ParseLevel(req.Scope)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: err.Error()}}
	}
	entries, err := h.service.Leaderboard(r.Context(), domain.Scope{Level: level, Department: req.Department, Section: req.Section})
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: err.Error()}}
	}
	return outboundMessage[any]{Type: "leaderboard", Payload: entries}
}
