// Package rooms serves the task progress channel: clients join per-task rooms and
// receive progress and status events for those tasks only.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	"golang.org/x/time/rate"
)

// RoomPrefix namespaces task rooms
const RoomPrefix = "task_progress:"

// RoomName returns the room of taskID
func RoomName(taskID string) string {
	return RoomPrefix + taskID
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Config configures a Hub
type Config struct {
	// ProgressThrottle is the minimum spacing of progress events per room; zero disables throttling
	ProgressThrottle time.Duration
	WriteTimeout     time.Duration
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	rooms   map[string]bool
}

// Hub tracks connected clients and their room membership
type Hub struct {
	storage    interfaces.TaskStorage
	logger     arbor.ILogger
	config     Config
	instanceID string

	mu      sync.RWMutex
	clients map[*client]bool
	rooms   map[string]map[*client]bool

	throttleMu sync.Mutex
	throttlers map[string]*rate.Limiter
}

// NewHub creates a hub. storage supplies the current state sent on join.
func NewHub(storage interfaces.TaskStorage, logger arbor.ILogger, config Config) *Hub {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	h := &Hub{
		storage:    storage,
		logger:     logger,
		config:     config,
		instanceID: uuid.New().String(),
		clients:    make(map[*client]bool),
		rooms:      make(map[string]map[*client]bool),
		throttlers: make(map[string]*rate.Limiter),
	}

	logger.Info().
		Str("hub_instance_id", h.instanceID).
		Dur("progress_throttle", config.ProgressThrottle).
		Msg("Task progress hub initialized")

	return h
}

// HandleWebSocket upgrades the request and serves the client until it disconnects
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	c := &client{conn: conn, rooms: make(map[string]bool)}

	h.mu.Lock()
	h.clients[c] = true
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	defer func() {
		h.mu.Lock()
		for room := range c.rooms {
			h.removeFromRoomLocked(room, c)
		}
		delete(h.clients, c)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn().Err(err).Msg("Dropping malformed client frame")
			continue
		}

		h.handleClientEvent(r.Context(), c, env)
	}
}

func (h *Hub) handleClientEvent(ctx context.Context, c *client, env models.Envelope) {
	switch env.Event {
	case models.EventJoinTaskProgress:
		req, err := models.DecodeRoomRequest(env)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Invalid join request")
			return
		}
		h.join(ctx, c, req.TaskID)
	case models.EventLeaveTaskProgress:
		req, err := models.DecodeRoomRequest(env)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Invalid leave request")
			return
		}
		h.leave(c, req.TaskID)
	default:
		h.logger.Debug().Str("event", env.Event).Msg("Ignoring unknown client event")
	}
}

// join adds c to the task room and replays the current progress, the join
// acknowledgement and, when a state is stored, the current status.
func (h *Hub) join(ctx context.Context, c *client, taskID string) {
	room := RoomName(taskID)

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
	h.mu.Unlock()

	var record *models.TaskRecord
	if h.storage != nil {
		stored, err := h.storage.GetTask(ctx, taskID)
		switch {
		case err == nil:
			record = stored
		case !errors.Is(err, interfaces.ErrTaskNotFound):
			h.logger.Warn().Err(err).Str("task_id", taskID).Msg("Failed to load task for join")
		}
	}

	progress := 0.0
	if record != nil {
		progress = record.Percent()
	}

	h.send(c, models.EventProgress, models.ProgressEvent{TaskID: taskID, Progress: progress})
	h.send(c, models.EventJoined, models.JoinedEvent{TaskID: taskID})
	if record != nil && record.State != "" {
		h.send(c, models.EventTaskStatus, models.TaskStatusEvent{
			TaskID: taskID,
			State:  record.State,
			Status: record.StatusMessage,
		})
	}

	h.logger.Debug().Str("room", room).Msg("Client joined task room")
}

func (h *Hub) leave(c *client, taskID string) {
	room := RoomName(taskID)

	h.mu.Lock()
	h.removeFromRoomLocked(room, c)
	delete(c.rooms, room)
	h.mu.Unlock()

	h.logger.Debug().Str("room", room).Msg("Client left task room")
}

func (h *Hub) removeFromRoomLocked(room string, c *client) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// SendProgress emits a progress event to the task room. Intermediate values are
// throttled per room; 100 is always delivered.
func (h *Hub) SendProgress(taskID string, progress float64) {
	if progress < 100 && !h.allowProgress(taskID) {
		return
	}
	h.broadcast(taskID, models.EventProgress, models.ProgressEvent{TaskID: taskID, Progress: progress})
}

// SendStatus emits a task_status event to the task room
func (h *Hub) SendStatus(taskID string, state models.TaskState, message string) {
	h.broadcast(taskID, models.EventTaskStatus, models.TaskStatusEvent{
		TaskID: taskID,
		State:  state,
		Status: message,
	})
	if state.IsTerminal() {
		h.throttleMu.Lock()
		delete(h.throttlers, taskID)
		h.throttleMu.Unlock()
	}
}

func (h *Hub) allowProgress(taskID string) bool {
	if h.config.ProgressThrottle <= 0 {
		return true
	}

	h.throttleMu.Lock()
	limiter, ok := h.throttlers[taskID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.config.ProgressThrottle), 1)
		h.throttlers[taskID] = limiter
	}
	h.throttleMu.Unlock()

	return limiter.Allow()
}

func (h *Hub) broadcast(taskID, event string, payload interface{}) {
	room := RoomName(taskID)

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.send(c, event, payload)
	}
}

func (h *Hub) send(c *client, event string, payload interface{}) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal room event")
		return
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	err = c.conn.WriteJSON(env)
	c.writeMu.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("Failed to send event to client")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in the task room
func (h *Hub) RoomSize(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[RoomName(taskID)])
}

// InstanceID identifies this hub process
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
