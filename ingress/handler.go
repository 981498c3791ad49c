// Package ingress implements the WebSocket upload channel. Each connection
// carries one session: the client uploads (image, params) pairs and the
// server answers with small JSON status messages.
package ingress

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/framestream/errors"
	"github.com/c360/framestream/frame"
	"github.com/c360/framestream/metric"
	"github.com/c360/framestream/session"
)

// Status values sent on the upload channel.
const (
	statusSuccess = "success"
	statusStart   = "start"
	statusError   = "error"
	statusTimeout = "timeout"
)

// statusMessage is the JSON control message written to the client.
type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

// Handler upgrades upload requests and feeds admitted sessions.
type Handler struct {
	registry       *session.Registry
	codec          *frame.Codec
	sessionTimeout time.Duration
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	metrics        *Metrics
}

// NewHandler creates the upload endpoint handler. A sessionTimeout of zero
// disables the session lifetime cap.
func NewHandler(
	registry *session.Registry,
	codec *frame.Codec,
	sessionTimeout time.Duration,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		registry:       registry,
		codec:          codec,
		sessionTimeout: sessionTimeout,
		logger:         logger.With("component", "ingress"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		metrics: newMetrics(metricsRegistry),
	}
}

// ServeHTTP upgrades the connection and runs the session loop until the
// client disconnects, the session times out, or the session is torn down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		h.trackError("upgrade_error")
		return
	}
	defer conn.Close()

	sess, err := h.registry.Admit()
	if err != nil {
		if stderrors.Is(err, errors.ErrServerFull) {
			h.writeStatus(conn, statusMessage{Status: statusError, Message: "Server is full"})
			h.trackError("server_full")
		} else {
			h.logger.Error("admission failed", "error", err)
			h.trackError("admit_error")
		}
		return
	}
	defer h.registry.Remove(sess.ID)

	if h.metrics != nil {
		h.metrics.connectionsActive.Inc()
		h.metrics.connectionsTotal.Inc()
		defer h.metrics.connectionsActive.Dec()
	}

	h.writeStatus(conn, statusMessage{Status: statusSuccess, Message: "Connected", UserID: sess.ID})
	h.writeStatus(conn, statusMessage{Status: statusStart, Message: "Start Streaming", UserID: sess.ID})

	h.logger.Info("session connected", "user_id", sess.ID, "remote", r.RemoteAddr)
	h.serveSession(r.Context(), conn, sess)
	h.logger.Info("session disconnected", "user_id", sess.ID, "age", sess.Age())
}

// serveSession reads (image, params) pairs until the connection or session
// ends. Protocol violations are fatal for the session, never retried.
func (h *Handler) serveSession(ctx context.Context, conn *websocket.Conn, sess *session.Session) {
	// Unblock pending reads when the request or session context ends.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopRequest := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopRequest()
	stopSession := context.AfterFunc(sess.Context(), func() { conn.Close() })
	defer stopSession()

	for {
		imageData, err := h.readMessage(conn, websocket.BinaryMessage)
		if err != nil {
			h.logClosure(sess.ID, "image", err)
			return
		}

		paramsData, err := h.readMessage(conn, websocket.TextMessage)
		if err != nil {
			h.logClosure(sess.ID, "params", err)
			return
		}

		params, err := session.ParseParams(paramsData)
		if err != nil {
			h.logger.Warn("malformed params, ending session", "user_id", sess.ID, "error", err)
			h.trackError("parse_error")
			return
		}

		img, err := h.codec.Decode(imageData)
		if err != nil {
			h.logger.Warn("undecodable image, ending session", "user_id", sess.ID, "error", err)
			h.trackError("decode_error")
			return
		}

		if err := sess.Queue.Put(session.Request{Image: img, Params: params}); err != nil {
			// Queue closed by teardown.
			return
		}

		if h.metrics != nil {
			h.metrics.pairsReceived.Inc()
		}

		if h.sessionTimeout > 0 && sess.Age() > h.sessionTimeout {
			h.writeStatus(conn, statusMessage{
				Status:  statusTimeout,
				Message: "Your session has ended",
				UserID:  sess.ID,
			})
			h.logger.Info("session timed out", "user_id", sess.ID, "age", sess.Age())
			return
		}
	}
}

// readMessage reads one data frame and enforces the expected frame kind.
func (h *Handler) readMessage(conn *websocket.Conn, wantType int) ([]byte, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != wantType {
		h.trackError("protocol_error")
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"ingress", "readMessage", "unexpected frame type")
	}
	return data, nil
}

// writeStatus sends a control message; write failures end the session via
// the subsequent read.
func (h *Handler) writeStatus(conn *websocket.Conn, msg statusMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.trackError("write_error")
	}
}

// logClosure distinguishes expected client disconnects from faults.
func (h *Handler) logClosure(userID, stage string, err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.logger.Debug("client closed connection", "user_id", userID, "stage", stage)
		return
	}
	if errors.IsInvalid(err) {
		h.logger.Warn("protocol violation, ending session", "user_id", userID, "stage", stage, "error", err)
		return
	}
	h.logger.Debug("read ended", "user_id", userID, "stage", stage, "error", err)
	h.trackError("read_error")
}

func (h *Handler) trackError(errorType string) {
	if h.metrics != nil {
		h.metrics.errorsTotal.WithLabelValues(errorType).Inc()
	}
}
