// Package notify доставляет уведомления подключённым клиентам по WebSocket.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message описывает кадр, отправляемый клиенту.
type Message struct {
	Type         string              `json:"type"`
	Notification *model.Notification `json:"notification,omitempty"`
}

type client struct {
	accountID int64
	conn      *websocket.Conn
	send      chan []byte
}

// Hub хранит открытые соединения, сгруппированные по аккаунтам.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[int64]map[*client]struct{}
}

// NewHub создаёт пустой хаб.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[int64]map[*client]struct{}),
	}
}

// Serve переводит запрос в WebSocket и подписывает соединение на уведомления аккаунта.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, accountID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}

	c := &client{accountID: accountID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Publish отправляет уведомление всем соединениям аккаунта. Медленные клиенты,
// у которых переполнен буфер, отключаются.
func (h *Hub) Publish(n model.Notification) error {
	data, err := json.Marshal(Message{Type: "notification", Notification: &n})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[n.AccountID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", zap.Int64("account_id", c.accountID))
			h.removeLocked(c)
		}
	}
	return nil
}

// Connections возвращает число открытых соединений аккаунта.
func (h *Hub) Connections(accountID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[accountID])
}

// Close закрывает все соединения.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.accountID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.accountID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.accountID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.accountID)
	}
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("unexpected websocket close", zap.Int64("account_id", c.accountID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
