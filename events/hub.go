package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"fadedreams/roadassist/domain"
)

const writeWait = 5 * time.Second

// Hub pushes booking changes to connected dashboard clients. It is fed by the
// bookings change stream; subscribers that cannot keep up are dropped so the
// core never blocks on a slow client.
type Hub struct {
	watcher  domain.BookingWatcher
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates a new Hub
func NewHub(watcher domain.BookingWatcher, logger *slog.Logger) *Hub {
	return &Hub{
		watcher: watcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the request and registers the client for booking
// updates.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", "error", err, "app", "roadassist")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Websocket client connected", "clients", count, "app", "roadassist")

	// Reader loop exists only to observe the close handshake.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Run watches the bookings collection and broadcasts every change until the
// context is done.
func (h *Hub) Run(ctx context.Context) error {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "HubRun")
	defer span.End()

	stream, err := h.watcher.WatchBookings(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to open change stream")
		h.logger.Error("Failed to open change stream", "error", err, "app", "roadassist")
		return err
	}
	defer stream.Close(ctx)

	h.logger.Info("Booking change stream open", "app", "roadassist")
	for stream.Next(ctx) {
		var change struct {
			OperationType string         `bson:"operationType"`
			FullDocument  domain.Booking `bson:"fullDocument"`
		}
		if err := stream.Decode(&change); err != nil {
			h.logger.Error("Failed to decode change event", "error", err, "app", "roadassist")
			continue
		}
		if change.FullDocument.ID == "" {
			continue
		}
		h.broadcast(change.OperationType, &change.FullDocument)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Change stream failed")
		return err
	}
	return ctx.Err()
}

func (h *Hub) broadcast(operation string, booking *domain.Booking) {
	msg, err := json.Marshal(map[string]any{
		"operation": operation,
		"booking":   booking,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", "error", err, "app", "roadassist")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("Dropping slow websocket client", "error", err, "app", "roadassist")
			h.drop(conn)
		}
	}
}
