package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kirabridge/internal/adapter"
	"kirabridge/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DesktopChannelName routes bus replies back to desktop websocket clients.
const DesktopChannelName = "desktop"

const wsWriteTimeout = 10 * time.Second

// WSMessage is the JSON protocol spoken with the desktop shell.
// Inbound: type "message" (with the desktop payload fields) or "ping".
// Outbound: type "message", "error" or "status".
type WSMessage struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Content   string   `json:"content,omitempty"`
	Text      string   `json:"text,omitempty"`
	UserID    string   `json:"userId,omitempty"`
	UserName  string   `json:"userName,omitempty"`
	ChannelID string   `json:"channelId,omitempty"`
	ThreadID  string   `json:"threadId,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Files     []string `json:"files,omitempty"`
	Persona   string   `json:"persona,omitempty"`
}

// DesktopConfig configures the desktop websocket channel.
type DesktopConfig struct {
	Logger *slog.Logger
}

// Desktop relays desktop-shell websocket messages through the bus.
type Desktop struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	bus     domain.MessageBus
	clients map[string]*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewDesktop(cfg DesktopConfig) *Desktop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Desktop{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The desktop shell loads from file:// or a dev server origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  cfg.Logger,
		clients: make(map[string]*wsClient),
	}
}

// Attach publishes future client messages to bus and registers the reply route.
func (d *Desktop) Attach(bus domain.MessageBus) {
	d.mu.Lock()
	d.bus = bus
	d.mu.Unlock()
	bus.OnOutbound(DesktopChannelName, d.deliver)
}

// Clients returns the number of connected clients.
func (d *Desktop) Clients() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

func (d *Desktop) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		d.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	clientID := uuid.NewString()
	client := &wsClient{conn: conn}
	d.mu.Lock()
	d.clients[clientID] = client
	d.mu.Unlock()
	d.logger.Info("desktop client connected", "client_id", clientID)

	defer func() {
		d.mu.Lock()
		delete(d.clients, clientID)
		d.mu.Unlock()
		conn.Close()
		d.logger.Info("desktop client disconnected", "client_id", clientID)
	}()

	client.send(WSMessage{Type: "status", Content: "connected", ID: clientID})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("websocket read error", "client_id", clientID, "err", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.send(WSMessage{Type: "error", Content: "invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "message":
			d.publish(r.Context(), clientID, client, msg)
		case "ping":
			client.send(WSMessage{Type: "status", Content: "pong"})
		default:
			client.send(WSMessage{Type: "error", Content: "unknown message type: " + msg.Type})
		}
	}
}

func (d *Desktop) publish(ctx context.Context, clientID string, client *wsClient, msg WSMessage) {
	d.mu.RLock()
	bus := d.bus
	d.mu.RUnlock()
	if bus == nil {
		client.send(WSMessage{Type: "error", Content: "server is not accepting messages"})
		return
	}

	payload := adapter.Payload{
		"text":      msg.Text,
		"userId":    msg.UserID,
		"userName":  msg.UserName,
		"channelId": msg.ChannelID,
		"timestamp": orDefault(msg.Timestamp, time.Now().UTC().Format(time.RFC3339)),
	}
	if msg.ThreadID != "" {
		payload["threadId"] = msg.ThreadID
	}
	if len(msg.Files) > 0 {
		files := make([]any, len(msg.Files))
		for i, f := range msg.Files {
			files[i] = f
		}
		payload["files"] = files
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := bus.Publish(ctx, domain.InboundMessage{
		ID:        id,
		Channel:   DesktopChannelName,
		ChatID:    clientID,
		ThreadID:  msg.ThreadID,
		SenderID:  msg.UserID,
		Payload:   payload,
		SourceTag: adapter.DesktopTag,
		Persona:   msg.Persona,
	})
	if err != nil {
		d.logger.Warn("desktop publish failed", "client_id", clientID, "err", err)
		client.send(WSMessage{Type: "error", ID: id, Content: "message could not be queued"})
		return
	}
	client.send(WSMessage{Type: "status", ID: id, Content: "processing"})
}

// deliver sends a bus reply to the client that asked for it.
func (d *Desktop) deliver(out domain.OutboundMessage) {
	d.mu.RLock()
	client, ok := d.clients[out.ChatID]
	d.mu.RUnlock()
	if !ok {
		d.logger.Debug("desktop client gone, dropping reply", "client_id", out.ChatID)
		return
	}
	typ := "message"
	if out.Error {
		typ = "error"
	}
	client.send(WSMessage{Type: typ, ID: out.ID, Content: out.Content, ThreadID: out.ThreadID})
}

// CloseAll disconnects every client.
func (d *Desktop) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range d.clients {
		c.conn.Close()
		delete(d.clients, id)
	}
}

func (c *wsClient) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}
