package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	ModelEvent      MessageType = "model"
)

const (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
)

// Message 推送给客户端的消息
type Message struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// ClientMessage 客户端发来的订阅消息
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// Client WebSocket客户端
type Client struct {
	conn          *websocket.Conn
	send          chan []byte
	clientID      string
	mu            sync.RWMutex
	subscriptions map[string]bool // 为空时接收全部主题
}

type envelope struct {
	topic   string
	payload []byte
}

// Hub WebSocket中心，负责向订阅者广播预测与模型事件
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
}

// NewHub 创建WebSocket中心
func NewHub(logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Run 运行事件循环，直到Stop被调用
func (h *Hub) Run() {
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected", zap.String("client", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", zap.String("client", client.clientID), zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(msg.topic) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止WebSocket中心
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 以非阻塞方式广播事件，队列满时丢弃
func (h *Hub) Publish(msgType MessageType, topic string, data interface{}) {
	if h == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("websocket payload encode failed", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Topic:     topic,
		Timestamp: time.Now(),
		Data:      raw,
		ID:        uuid.NewString(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- envelope{topic: topic, payload: payload}:
	default:
		h.logger.Warn("websocket broadcast queue is full, dropping message", zap.String("topic", topic))
	}
}

// ServeHTTP 升级连接并启动读写协程
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, 64),
		clientID:      uuid.NewString(),
		subscriptions: make(map[string]bool),
	}
	if topic := r.URL.Query().Get("topic"); topic != "" {
		client.subscriptions[topic] = true
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

func (c *Client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[topic]
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵，处理订阅/退订
func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client", c.clientID), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		switch msg.Type {
		case "subscribe":
			c.subscriptions[msg.Topic] = true
		case "unsubscribe":
			delete(c.subscriptions, msg.Topic)
		}
		c.mu.Unlock()
	}
}
