// Package ws реализует push-канал состояния пресейла поверх websocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmeshcher/wusle-presale/internal/presale"
)

// DefaultInterval — период рассылки снимков подключённым клиентам.
const DefaultInterval = 5 * time.Second

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 8
)

// SnapshotProvider отдаёт актуальный снимок состояния пресейла.
type SnapshotProvider interface {
	GetPresaleSnapshot(ctx context.Context) (*presale.Snapshot, error)
}

type event struct {
	Event string            `json:"event"`
	Data  *presale.Snapshot `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub раздаёт снимки состояния пресейла всем подключённым клиентам.
// Создаётся ровно один на процесс: снимок вычисляется один раз за интервал
// и рассылается всем соединениям, отдельных таймеров на клиента нет.
type Hub struct {
	provider SnapshotProvider
	logger   *zap.Logger
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub создаёт hub с указанным источником снимков и интервалом рассылки.
func NewHub(provider SnapshotProvider, logger *zap.Logger, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		provider: provider,
		logger:   logger,
		interval: interval,
		upgrader: websocket.Upgrader{
			// Канал публичный и read-only, происхождение не ограничивается.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// Run рассылает снимки до отмены контекста, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context) {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	msg, err := h.snapshotMessage(ctx)
	if err != nil {
		h.logger.Error("snapshot for broadcast error", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Клиент не успевает читать — отключаем, переподключение
			// принесёт ему свежий снимок.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) snapshotMessage(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	snap, err := h.provider.GetPresaleSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	return json.Marshal(event{Event: "presaleInfo", Data: snap})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP обновляет соединение до websocket, сразу отправляет свежий
// снимок и подписывает клиента на рассылку.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	if msg, err := h.snapshotMessage(r.Context()); err == nil {
		c.send <- msg
	} else {
		h.logger.Error("initial snapshot error", zap.Error(err))
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// readPump выбрасывает входящие сообщения: канал односторонний,
// чтение нужно только чтобы заметить закрытие соединения.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}
