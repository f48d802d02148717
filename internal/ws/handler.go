package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"messenger-service/internal/auth"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

const sessionRoutingKey = "ws_events.sessions"

// Handler owns the websocket endpoint: authenticate, upgrade, register, run
// the dispatcher, and tear everything down on exit.
type Handler struct {
	session  *SessionManager
	router   *Router
	verifier auth.TokenVerifier
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
}

// NewHandler constructs the websocket Handler.
func NewHandler(session *SessionManager, router *Router, verifier auth.TokenVerifier, messages repositories.MessageRepository, groups repositories.GroupRepository) *Handler {
	return &Handler{session: session, router: router, verifier: verifier, messages: messages, groups: groups}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle serves GET /ws/:token. An invalid token is rejected before the
// upgrade, with no registration and no presence emitted.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Param("token")
	if token == "" {
		token = c.Query("token")
	}

	user, err := h.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	deviceID := observability.DeviceIDFromRequest(c.Request)
	ip := observability.IPFromRequest(c.Request)

	client := h.session.Connect(ctx, user, conn)
	go client.WritePump()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, client, "ws_connect", "", deviceID, ip, requestID, traceID)

	go func() {
		// The request context dies with the handler; the connection does not.
		runCtx := context.Background()
		defer func() {
			h.session.Disconnect(runCtx, client)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			h.publishLifecycle(runCtx, client, "ws_disconnect",
				time.Since(client.ConnectedAt).String(), deviceID, ip, requestID, traceID)
		}()
		NewDispatcher(client, h.router, h.messages, h.groups).Run(runCtx)
	}()
}

func (h *Handler) publishLifecycle(ctx context.Context, client *Client, event, duration, deviceID, ip, requestID, traceID string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":    event,
			"conn_id":  client.ConnID,
			"duration": duration,
		},
		"identity": map[string]interface{}{
			"user_id":   client.User.ID,
			"device_id": deviceID,
			"ip":        ip,
		},
	}
	_ = observability.PublishEvent(ctx, sessionRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(requestID, traceID))
}
