package streaming

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades incoming HTTP requests to WebSocket connections and
// registers them with a Hub.
type Handler struct {
	hub *Hub
	log *logger.Logger
}

// NewHandler creates a streaming Handler around hub.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: hub, log: log.WithFields(zap.String("component", "streaming_handler"))}
}

// Stream handles GET /ws: a client connects and, by default, is
// subscribed to every event until it sends a subscribe/unsubscribe
// control message narrowing its subjects.
func (h *Handler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	h.log.Info("websocket connection established", zap.String("client_id", clientID))

	client := NewClient(clientID, conn, h.hub, h.log)
	h.hub.Register(client)
	client.Subscribe(allSubject)

	go client.WritePump()
	go client.ReadPump()
}

// RegisterRoutes mounts the streaming endpoint on router.
func RegisterRoutes(router gin.IRouter, handler *Handler) {
	router.GET("/ws", handler.Stream)
}
