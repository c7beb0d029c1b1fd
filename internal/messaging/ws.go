package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/tasking/internal/model"
)

// Event is the frame pushed to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const EventOrderStatus = "order_status"

const (
	defaultWriteWait  = 10 * time.Second
	defaultSendBuffer = 16
)

// client owns one websocket. Only writeLoop writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub fans order status appends out to websocket subscribers of that order.
// Publishing never waits on a subscriber: each connection has a bounded
// queue, and a subscriber whose queue is full is disconnected.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader

	writeWait  time.Duration
	sendBuffer int
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeWait:  defaultWriteWait,
		sendBuffer: defaultSendBuffer,
	}
}

func (h *Hub) join(orderID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[orderID]
	if !ok {
		r = make(map[*client]struct{})
		h.rooms[orderID] = r
	}
	r[c] = struct{}{}
}

func (h *Hub) leave(orderID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(orderID, c)
}

func (h *Hub) removeLocked(orderID string, c *client) {
	r, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(r, c)
	if len(r) == 0 {
		delete(h.rooms, orderID)
	}
}

// Subscribers counts open connections for an order.
func (h *Hub) Subscribers(orderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[orderID])
}

func (h *Hub) broadcast(orderID string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("encode websocket event", "order_id", orderID, "error", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.rooms[orderID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.removeLocked(orderID, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket subscriber", "order_id", orderID)
		c.close()
	}
}

// writeLoop drains c.send until the client closes. A write that misses the
// deadline closes the connection, which also ends the handler's read loop.
func (h *Hub) writeLoop(orderID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("websocket write failed", "order_id", orderID, "error", err)
				c.close()
				return
			}
		}
	}
}

// PublishOrderStatus pushes a newly appended status to the order's subscribers.
func (h *Hub) PublishOrderStatus(orderID string, status model.OrderStatus) {
	h.broadcast(orderID, Event{Type: EventOrderStatus, Data: status})
}

// OrderStatusStream upgrades to a websocket that receives every status
// appended to the order from now on. exists reports unknown orders before the
// upgrade so they get a plain 404.
func (h *Hub) OrderStatusStream(exists func(ctx context.Context, orderID string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		orderID := c.Param("orderID")
		if err := exists(c.Request().Context(), orderID); err != nil {
			return err
		}

		ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already answered the client.
			slog.DebugContext(c.Request().Context(), "websocket upgrade failed", "order_id", orderID, "error", err)
			return nil
		}
		cl := &client{
			conn: ws,
			send: make(chan []byte, h.sendBuffer),
			done: make(chan struct{}),
		}
		h.join(orderID, cl)
		go h.writeLoop(orderID, cl)
		defer func() {
			h.leave(orderID, cl)
			cl.close()
		}()

		// Server push only; reads just detect the close.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return nil
			}
		}
	}
}
